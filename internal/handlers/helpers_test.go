package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/database/memstore"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/guidedtours/reservation-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "handler-test-secret-0123456789"

type testServer struct {
	router *gin.Engine
	store  *memstore.Store
	tour   *models.Tour
	jwt    *jwt.Service
	date   string
}

func newTestServer(t *testing.T, capacity int, holdTTL time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := memstore.New()
	tour := &models.Tour{
		Name:     "Harbour Night Walk",
		Capacity: capacity,
		Price:    models.Money(4000),
		Currency: "USD",
		Status:   models.TourStatusActive,
	}
	require.NoError(t, s.CreateTour(context.Background(), tour))

	ledger := services.NewInventoryLedger(s, s, s, s, logger)
	holds := services.NewHoldManager(s, ledger, s, holdTTL, logger)
	codes := services.NewCodeIssuer(s, "handler-test-qr-key-0123456789", services.DefaultCodeMaxAttempts, logger)
	redemption := services.NewRedemptionValidator(s, s, s, codes, logger)
	gateway := services.NewSandboxGateway()
	audits := services.NewPaymentAuditService(s, gateway.Mode(), logger)
	store := services.Store{
		Tx: s, Tours: s, Ledger: s, Holds: s, Bookings: s,
		Codes: s, Redemptions: s, Transactions: s, Audits: s,
	}
	bookings := services.NewBookingService(store, holds, ledger, codes, services.NewSettlementCalculator(),
		redemption, gateway, audits, nil,
		services.BookingServiceConfig{
			HoldTTL:         holdTTL,
			DefaultCurrency: "USD",
			Retention: models.RetentionConfig{
				Version:         "test",
				AppCommission:   500,
				Tax:             1000,
				BankCommission:  250,
				OtherRetentions: 0,
			},
		}, logger)
	sweeper := services.NewHoldExpirationService(bookings, holds, logger)
	cron := services.NewCronService(sweeper, "@every 1h", logger)
	jwtService := jwt.NewService(testJWTSecret, time.Hour)

	router := NewRouter(RouterDeps{
		Bookings:    NewBookingHandler(bookings, logger),
		Tours:       NewTourHandler(s, bookings, logger),
		Payments:    NewPaymentHandler(bookings, logger),
		Redemptions: NewRedemptionHandler(bookings, logger),
		Settlements: NewSettlementHandler(bookings, logger),
		System:      NewSystemHandler(s, cron, string(gateway.Mode()), "test"),
		JWT:         jwtService,
		Logger:      logger,
	})

	return &testServer{
		router: router,
		store:  s,
		tour:   tour,
		jwt:    jwtService,
		date:   time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"),
	}
}

func (s *testServer) token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := s.jwt.GenerateAccessToken(uuid.New(), "Gate 1", roles)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) hold(t *testing.T, adults int) models.StartBookingResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/holds", gin.H{
		"tour_id":       s.tour.ID,
		"date":          s.date,
		"adults":        adults,
		"customer_name": "Ada Lovelace",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.StartBookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
