package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/metrics"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const (
	// CodeAlphabet excludes the look-alikes 0 O 1 I L
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	codeGroups    = 4
	codeGroupSize = 4
	codeSymbols   = codeGroups * codeGroupSize

	// DefaultCodeMaxAttempts bounds collision retries before escalating
	DefaultCodeMaxAttempts = 5

	qrVersion = "TKT1"
	qrMACSize = 16
)

// rejectAbove is the largest multiple of the alphabet size that fits in a byte;
// bytes at or above it are redrawn so every symbol is equally likely.
var rejectAbove = byte(256 - 256%len(CodeAlphabet))

// CodeIssuer generates collision-free redemption codes and signed QR payloads
type CodeIssuer struct {
	registry    CodeRegistry
	qrKey       []byte
	maxAttempts int
	random      io.Reader
	logger      *logrus.Logger
	now         func() time.Time
}

// NewCodeIssuer creates a new CodeIssuer
func NewCodeIssuer(registry CodeRegistry, qrSigningKey string, maxAttempts int, logger *logrus.Logger) *CodeIssuer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultCodeMaxAttempts
	}
	key := []byte(qrSigningKey)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &CodeIssuer{
		registry:    registry,
		qrKey:       key,
		maxAttempts: maxAttempts,
		random:      rand.Reader,
		logger:      logger,
		now:         time.Now,
	}
}

// IssueCode draws a fresh code, registers it permanently and returns it with
// its QR payload. The registry write joins the caller's transaction.
func (i *CodeIssuer) IssueCode(ctx context.Context, booking *models.Booking) (string, string, error) {
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		code, err := i.generate()
		if err != nil {
			return "", "", fmt.Errorf("failed to generate code: %w", err)
		}

		err = i.registry.RegisterCode(ctx, code, booking.ID, i.now())
		if errors.Is(err, models.ErrCodeCollision) {
			metrics.CodeCollisions.Inc()
			i.logger.WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"attempt":    attempt,
			}).Warn("Redemption code collision, drawing again")
			continue
		}
		if err != nil {
			return "", "", err
		}
		return code, i.QRPayload(code, booking.ID), nil
	}

	metrics.CodeIssueFailures.Inc()
	i.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"max_attempts": i.maxAttempts,
		"alert":        true,
	}).Error("Redemption code space exhausted: alphabet or length needs revisiting")
	return "", "", models.ErrCodeSpaceExhausted
}

// generate returns XXXX-XXXX-XXXX-XXXX drawn uniformly from CodeAlphabet
func (i *CodeIssuer) generate() (string, error) {
	symbols := make([]byte, 0, codeSymbols)
	buf := make([]byte, codeSymbols*2)
	for len(symbols) < codeSymbols {
		if _, err := io.ReadFull(i.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			symbols = append(symbols, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(symbols) == codeSymbols {
				break
			}
		}
	}

	var sb strings.Builder
	for g := 0; g < codeGroups; g++ {
		if g > 0 {
			sb.WriteByte('-')
		}
		sb.Write(symbols[g*codeGroupSize : (g+1)*codeGroupSize])
	}
	return sb.String(), nil
}

// NormalizeCode returns the canonical uppercase form of user input, accepting
// any case, surrounding blanks and missing hyphens. ok is false if the input
// cannot be a code.
func NormalizeCode(input string) (string, bool) {
	raw := strings.ToUpper(strings.TrimSpace(input))
	raw = strings.NewReplacer("-", "", " ", "").Replace(raw)
	if len(raw) != codeSymbols {
		return "", false
	}
	for _, r := range raw {
		if !strings.ContainsRune(CodeAlphabet, r) {
			return "", false
		}
	}
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12] + "-" + raw[12:16], true
}

// QRPayload builds TKT1.<code>.<bookingID>.<mac>
func (i *CodeIssuer) QRPayload(code string, bookingID uuid.UUID) string {
	return strings.Join([]string{qrVersion, code, bookingID.String(), i.mac(code, bookingID)}, ".")
}

// ParseQRPayload verifies the MAC and returns the code and booking it names.
func (i *CodeIssuer) ParseQRPayload(payload string) (string, uuid.UUID, error) {
	parts := strings.Split(strings.TrimSpace(payload), ".")
	if len(parts) != 4 || parts[0] != qrVersion {
		return "", uuid.Nil, models.ErrInvalidCode
	}
	code, ok := NormalizeCode(parts[1])
	if !ok {
		return "", uuid.Nil, models.ErrInvalidCode
	}
	bookingID, err := uuid.Parse(parts[2])
	if err != nil {
		return "", uuid.Nil, models.ErrInvalidCode
	}
	expected := i.mac(code, bookingID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[3])) != 1 {
		return "", uuid.Nil, models.ErrInvalidCode
	}
	return code, bookingID, nil
}

func (i *CodeIssuer) mac(code string, bookingID uuid.UUID) string {
	h, err := blake2b.New256(i.qrKey)
	if err != nil {
		// key length is bounded in NewCodeIssuer
		panic(err)
	}
	h.Write([]byte(code))
	h.Write([]byte{'|'})
	h.Write(bookingID[:])
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:qrMACSize])
}
