package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/guidedtours/reservation-backend/internal/metrics"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentGateway is the boundary to the payment provider. VerifyPayment must
// be safe to call repeatedly for one session: the client poll and the
// provider webhook race to confirm the same booking.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req *models.CheckoutRequest) (*models.SessionRef, error)
	VerifyPayment(ctx context.Context, sessionID string) (*models.PaymentStatus, error)
	// Refund returns money for a payment. A zero amount refunds in full.
	Refund(ctx context.Context, paymentReference string, amount models.Money) (*models.RefundResult, error)
	Mode() models.PaymentMode
}

// NewPaymentGateway selects the implementation once, at startup.
func NewPaymentGateway(cfg *config.PaymentConfig, logger *logrus.Logger) (PaymentGateway, error) {
	switch cfg.Mode {
	case models.PaymentModeSandbox:
		logger.Warn("Payment gateway running in SANDBOX mode: every checkout is reported paid")
		return NewSandboxGateway(), nil
	case models.PaymentModeLive:
		gw := NewPAYableGateway(cfg, logger)
		if !gw.IsConfigured() {
			return nil, fmt.Errorf("live payment mode requires PAYABLE_MERCHANT_KEY and PAYABLE_MERCHANT_TOKEN")
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown payment mode %q", cfg.Mode)
	}
}

// observe records gateway call latency
func observe(mode models.PaymentMode, operation string, start time.Time) {
	metrics.GatewayCallDuration.WithLabelValues(string(mode), operation).Observe(time.Since(start).Seconds())
}

// ============================================================================
// SANDBOX
// ============================================================================

// SandboxGateway never leaves the process. Session ids are derived from the
// request so retries get the same session, and every session verifies as paid.
type SandboxGateway struct {
	mu       sync.Mutex
	sessions map[string]models.PaymentStatus
	refunds  map[string]models.RefundResult
	now      func() time.Time
}

// NewSandboxGateway creates a new SandboxGateway
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{
		sessions: map[string]models.PaymentStatus{},
		refunds:  map[string]models.RefundResult{},
		now:      time.Now,
	}
}

// Mode returns sandbox
func (g *SandboxGateway) Mode() models.PaymentMode {
	return models.PaymentModeSandbox
}

// CreateCheckoutSession synthesizes a session keyed by the booking metadata
func (g *SandboxGateway) CreateCheckoutSession(_ context.Context, req *models.CheckoutRequest) (*models.SessionRef, error) {
	defer observe(g.Mode(), "checkout", time.Now())

	sessionID := "sbx_" + digest(req.Metadata["booking_id"], req.Amount.String(), req.Currency)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sessions[sessionID]; !exists {
		g.sessions[sessionID] = models.PaymentStatus{
			SessionID:        sessionID,
			State:            models.PaymentStatePaid,
			PaymentReference: "sbx_pay_" + digest(sessionID),
			Amount:           req.Amount,
			Currency:         req.Currency,
		}
	}
	return &models.SessionRef{SessionID: sessionID, PaymentURL: "sandbox://checkout/" + sessionID}, nil
}

// VerifyPayment reports paid for any session. Unknown sessions get a
// synthesized reference so externally created sandbox sessions still verify.
func (g *SandboxGateway) VerifyPayment(_ context.Context, sessionID string) (*models.PaymentStatus, error) {
	defer observe(g.Mode(), "verify", time.Now())

	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.sessions[sessionID]
	if !ok {
		status = models.PaymentStatus{
			SessionID:        sessionID,
			State:            models.PaymentStatePaid,
			PaymentReference: "sbx_pay_" + digest(sessionID),
		}
		g.sessions[sessionID] = status
	}
	return &status, nil
}

// Refund records a refund; repeating it returns the first result
func (g *SandboxGateway) Refund(_ context.Context, paymentReference string, amount models.Money) (*models.RefundResult, error) {
	defer observe(g.Mode(), "refund", time.Now())

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.refunds[paymentReference]; ok {
		return &r, nil
	}
	r := models.RefundResult{
		RefundID:         "sbx_ref_" + digest(paymentReference),
		PaymentReference: paymentReference,
		Amount:           amount,
		Status:           "refunded",
		RequestedAt:      g.now(),
	}
	g.refunds[paymentReference] = r
	return &r, nil
}

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:24]
}
