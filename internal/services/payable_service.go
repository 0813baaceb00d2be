package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PAYableEnvironmentURLs maps environment names to their IPG endpoint URLs
var PAYableEnvironmentURLs = map[string]string{
	"dev":        "https://payable-ipg-dev.web.app/ipg/dev",
	"sandbox":    "https://sandboxipgpayment.payable.lk/ipg/sandbox",
	"production": "https://ipgpayment.payable.lk/ipg/pro",
}

// sessionSeparator joins the PAYable uid and status indicator into one session id;
// both are needed for a status check.
const sessionSeparator = ":"

// PAYableGateway is the live PaymentGateway backed by PAYable IPG
type PAYableGateway struct {
	config      *config.PaymentConfig
	logger      *logrus.Logger
	client      *http.Client
	endpointURL string
}

// payablePaymentRequest is the checkout request sent to PAYable.
// merchantToken is never sent; it only feeds the checkValue.
type payablePaymentRequest struct {
	MerchantKey     string `json:"merchantKey"`
	LogoURL         string `json:"logoUrl,omitempty"`
	ReturnURL       string `json:"returnUrl"`
	WebhookURL      string `json:"webhookUrl,omitempty"`
	StatusReturnURL string `json:"statusReturnUrl,omitempty"`

	PaymentType      int    `json:"paymentType"` // 1 = one-time
	InvoiceID        string `json:"invoiceId"`
	Amount           string `json:"amount"`
	CurrencyCode     string `json:"currencyCode"`
	OrderDescription string `json:"orderDescription,omitempty"`

	CustomerFirstName   string `json:"customerFirstName"`
	CustomerLastName    string `json:"customerLastName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerMobilePhone string `json:"customerMobilePhone"`

	BillingAddressStreet      string `json:"billingAddressStreet"`
	BillingAddressCity        string `json:"billingAddressCity"`
	BillingAddressCountry     string `json:"billingAddressCountry"`
	BillingAddressPostcodeZip string `json:"billingAddressPostcodeZip"`

	CheckValue         string `json:"checkValue"`
	IsMobilePayment    int    `json:"isMobilePayment"`
	IntegrationType    string `json:"integrationType"` // Max 20 chars
	IntegrationVersion string `json:"integrationVersion"`
}

type payablePaymentResponse struct {
	Status          string `json:"status"`
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
	PaymentPage     string `json:"paymentPage"`
	Message         string `json:"message,omitempty"`
}

type payableStatusRequest struct {
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
}

type payableStatusResponse struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"` // "pending", "success", "failed", "cancelled"
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currencyCode"`
	InvoiceID     string `json:"invoiceId"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

type payableRefundRequest struct {
	MerchantKey   string `json:"merchantKey"`
	TransactionID string `json:"transactionId"`
	Amount        string `json:"amount,omitempty"`
	CheckValue    string `json:"checkValue"`
}

type payableRefundResponse struct {
	Status   string `json:"status"`
	RefundID string `json:"refundId"`
	Message  string `json:"message,omitempty"`
}

// NewPAYableGateway creates the live gateway
func NewPAYableGateway(cfg *config.PaymentConfig, logger *logrus.Logger) *PAYableGateway {
	endpointURL, ok := PAYableEnvironmentURLs[cfg.Environment]
	if !ok {
		endpointURL = PAYableEnvironmentURLs["sandbox"]
	}
	return &PAYableGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		endpointURL: endpointURL,
	}
}

// Mode returns live
func (g *PAYableGateway) Mode() models.PaymentMode {
	return models.PaymentModeLive
}

// IsConfigured returns true if merchant credentials are present
func (g *PAYableGateway) IsConfigured() bool {
	return g.config.MerchantKey != "" && g.config.MerchantToken != ""
}

// GenerateCheckValue creates the SHA-512 checkValue for PAYable authentication
// Step 1: hash1 = SHA512(merchantToken) uppercase hex
// Step 2: hash2 = SHA512("merchantKey|invoiceId|amount|currencyCode|hash1") uppercase hex
func (g *PAYableGateway) GenerateCheckValue(invoiceID, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(g.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		g.config.MerchantKey,
		invoiceID,
		amount,
		currencyCode,
		hash1Hex,
	)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// CreateCheckoutSession initiates a PAYable payment and returns the payment page
func (g *PAYableGateway) CreateCheckoutSession(ctx context.Context, req *models.CheckoutRequest) (*models.SessionRef, error) {
	defer observe(g.Mode(), "checkout", time.Now())

	if !g.IsConfigured() {
		return nil, fmt.Errorf("payment gateway not configured: missing merchant credentials")
	}

	invoiceID := req.Metadata["booking_id"]
	amount := req.Amount.String()
	firstName, lastName := splitName(req.CustomerName)

	request := &payablePaymentRequest{
		MerchantKey:               g.config.MerchantKey,
		LogoURL:                   g.config.LogoURL,
		ReturnURL:                 g.config.ReturnURL,
		WebhookURL:                g.config.WebhookURL,
		StatusReturnURL:           g.endpointURL + "/status-view",
		PaymentType:               1,
		InvoiceID:                 invoiceID,
		Amount:                    amount,
		CurrencyCode:              req.Currency,
		OrderDescription:          req.Description,
		CustomerFirstName:         firstName,
		CustomerLastName:          lastName,
		CustomerEmail:             orDefault(req.Email, "guest@guidedtours.example"),
		CustomerMobilePhone:       orDefault(req.Phone, "0000000000"),
		BillingAddressStreet:      "N/A",
		BillingAddressCity:        "N/A",
		BillingAddressCountry:     "LK",
		BillingAddressPostcodeZip: "00000",
		CheckValue:                g.GenerateCheckValue(invoiceID, amount, req.Currency),
		IsMobilePayment:           0,
		IntegrationType:           "GuidedTours",
		IntegrationVersion:        "1.0.0",
	}

	g.logger.WithFields(logrus.Fields{
		"invoice_id": invoiceID,
		"amount":     amount,
		"currency":   req.Currency,
	}).Info("Initiating PAYable payment")

	var resp payablePaymentResponse
	if err := g.post(ctx, g.endpointURL, request, &resp); err != nil {
		return nil, err
	}

	// PAYable returns "PENDING" when the payment page is ready, "success" in some cases
	if resp.Status != "success" && resp.Status != "PENDING" {
		errMsg := resp.Message
		if errMsg == "" {
			errMsg = "status=" + resp.Status
		}
		return nil, fmt.Errorf("payment initiation failed: %s", errMsg)
	}
	if resp.PaymentPage == "" || resp.UID == "" {
		return nil, fmt.Errorf("payment initiation failed: no payment page returned")
	}

	g.logger.WithField("uid", resp.UID).Info("PAYable payment initiated successfully")

	return &models.SessionRef{
		SessionID:       SessionIDFromPAYable(resp.UID, resp.StatusIndicator),
		PaymentURL:      resp.PaymentPage,
		StatusIndicator: resp.StatusIndicator,
	}, nil
}

// VerifyPayment queries the payment status. Read-only at the provider, so repeat calls are safe.
func (g *PAYableGateway) VerifyPayment(ctx context.Context, sessionID string) (*models.PaymentStatus, error) {
	defer observe(g.Mode(), "verify", time.Now())

	uid, indicator, ok := strings.Cut(sessionID, sessionSeparator)
	if !ok || uid == "" {
		return nil, fmt.Errorf("malformed PAYable session id %q", sessionID)
	}

	statusURL := strings.Replace(g.endpointURL, "/ipg/", "/check-status/", 1)
	var resp payableStatusResponse
	if err := g.post(ctx, statusURL, &payableStatusRequest{UID: uid, StatusIndicator: indicator}, &resp); err != nil {
		return nil, err
	}

	status := &models.PaymentStatus{
		SessionID:        sessionID,
		State:            mapPAYableState(resp.PaymentStatus),
		PaymentReference: resp.TransactionID,
		Currency:         resp.CurrencyCode,
	}
	if resp.Amount != "" {
		amount, err := models.ParseMoney(resp.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse status amount: %w", err)
		}
		status.Amount = amount
	}
	if status.PaymentReference == "" {
		status.PaymentReference = uid
	}
	return status, nil
}

// Refund requests a refund for a settled payment
func (g *PAYableGateway) Refund(ctx context.Context, paymentReference string, amount models.Money) (*models.RefundResult, error) {
	defer observe(g.Mode(), "refund", time.Now())

	amountStr := ""
	if amount > 0 {
		amountStr = amount.String()
	}
	refundURL := strings.Replace(g.endpointURL, "/ipg/", "/refund/", 1)
	request := &payableRefundRequest{
		MerchantKey:   g.config.MerchantKey,
		TransactionID: paymentReference,
		Amount:        amountStr,
		CheckValue:    g.GenerateCheckValue(paymentReference, amountStr, ""),
	}

	var resp payableRefundResponse
	if err := g.post(ctx, refundURL, request, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "success") {
		return nil, fmt.Errorf("refund rejected: %s", resp.Message)
	}
	return &models.RefundResult{
		RefundID:         resp.RefundID,
		PaymentReference: paymentReference,
		Amount:           amount,
		Status:           "requested",
		RequestedAt:      time.Now(),
	}, nil
}

func (g *PAYableGateway) post(ctx context.Context, url string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("url", url).Error("Failed to call PAYable endpoint")
		return fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// SessionIDFromPAYable joins uid and status indicator into the stored session id
func SessionIDFromPAYable(uid, statusIndicator string) string {
	return uid + sessionSeparator + statusIndicator
}

func mapPAYableState(s string) models.PaymentState {
	switch strings.ToUpper(s) {
	case "SUCCESS", "PAID":
		return models.PaymentStatePaid
	case "FAILED":
		return models.PaymentStateFailed
	case "CANCELLED":
		return models.PaymentStateCancelled
	default:
		return models.PaymentStatePending
	}
}

// splitName splits a full name into first and last name
func splitName(fullName string) (firstName, lastName string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "Customer", "."
	}
	if len(parts) == 1 {
		return parts[0], "." // PAYable requires a last name
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
