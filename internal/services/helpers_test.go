package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/guidedtours/reservation-backend/internal/database/memstore"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	testNow  = time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	tourDate = time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)

	testRetention = models.RetentionConfig{
		Version:         "2026-01",
		AppCommission:   500,
		Tax:             1600,
		BankCommission:  300,
		OtherRetentions: 200,
	}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testEnv struct {
	store      *memstore.Store
	clock      *testClock
	tour       *models.Tour
	ledger     *InventoryLedger
	holds      *HoldManager
	codes      *CodeIssuer
	redemption *RedemptionValidator
	gateway    PaymentGateway
	bookings   *BookingService
	sweeper    *HoldExpirationService
}

type envOption func(*testEnv)

func withGateway(gw PaymentGateway) envOption {
	return func(e *testEnv) { e.gateway = gw }
}

func newTestEnv(t *testing.T, capacity int, opts ...envOption) *testEnv {
	t.Helper()
	logger := testLogger()
	env := &testEnv{
		store:   memstore.New(),
		clock:   &testClock{t: testNow},
		gateway: NewSandboxGateway(),
	}
	for _, opt := range opts {
		opt(env)
	}

	env.tour = &models.Tour{
		Name:     "Old Town Walking Tour",
		Capacity: capacity,
		Price:    models.Money(5000),
		Currency: "USD",
		Status:   models.TourStatusActive,
	}
	require.NoError(t, env.store.CreateTour(context.Background(), env.tour))

	s := env.store
	env.ledger = NewInventoryLedger(s, s, s, s, logger)
	env.ledger.now = env.clock.Now
	env.holds = NewHoldManager(s, env.ledger, s, 10*time.Minute, logger)
	env.holds.now = env.clock.Now
	env.codes = NewCodeIssuer(s, "test-qr-signing-key-0123456789", DefaultCodeMaxAttempts, logger)
	env.codes.now = env.clock.Now
	env.redemption = NewRedemptionValidator(s, s, s, env.codes, logger)
	env.redemption.now = env.clock.Now

	store := Store{
		Tx: s, Tours: s, Ledger: s, Holds: s, Bookings: s,
		Codes: s, Redemptions: s, Transactions: s, Audits: s,
	}
	audits := NewPaymentAuditService(s, env.gateway.Mode(), logger)
	env.bookings = NewBookingService(store, env.holds, env.ledger, env.codes, NewSettlementCalculator(),
		env.redemption, env.gateway, audits, nil,
		BookingServiceConfig{HoldTTL: 10 * time.Minute, Retention: testRetention, DefaultCurrency: "USD"},
		logger)
	env.bookings.now = env.clock.Now
	env.sweeper = NewHoldExpirationService(env.bookings, env.holds, logger)
	env.sweeper.now = env.clock.Now
	return env
}

func (e *testEnv) committed(t *testing.T) int {
	t.Helper()
	_, committed, _, err := e.store.GetLedger(context.Background(), e.tour.ID, tourDate)
	require.NoError(t, err)
	return committed
}

func (e *testEnv) startBooking(t *testing.T, adults, children int) *models.StartBookingResponse {
	t.Helper()
	resp, err := e.bookings.StartBooking(context.Background(), &models.StartBookingRequest{
		TourID:       e.tour.ID.String(),
		Date:         tourDate.Format("2006-01-02"),
		Adults:       adults,
		Children:     children,
		CustomerInfo: models.CustomerInfo{Name: "Ada Lovelace"},
	})
	require.NoError(t, err)
	return resp
}
