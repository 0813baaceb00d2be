package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Booking lifecycle event types. Topic is "bookings.<type>".
const (
	BookingReserved  = "reserved"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingExpired   = "expired"
	BookingRedeemed  = "redeemed"
)

// Header is common to every event
type Header struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

// BookingEvent is the payload published after a booking transition commits
type BookingEvent struct {
	Header    Header               `json:"header"`
	Type      string               `json:"type"`
	BookingID uuid.UUID            `json:"booking_id"`
	TourID    uuid.UUID            `json:"tour_id"`
	TourDate  string               `json:"tour_date"`
	Seats     int                  `json:"seats"`
	Status    models.BookingStatus `json:"status"`
	Total     models.Money         `json:"total_amount"`
	Currency  string               `json:"currency"`
}

// Publisher publishes booking events on a watermill publisher
type Publisher struct {
	pub    message.Publisher
	logger *logrus.Logger
}

// NewPublisher wraps a watermill publisher
func NewPublisher(pub message.Publisher, logger *logrus.Logger) *Publisher {
	return &Publisher{pub: pub, logger: logger}
}

// NewRedisPublisher publishes to Redis streams
func NewRedisPublisher(rdb *redis.Client, logger *logrus.Logger) (*Publisher, error) {
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, NewWatermillLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("could not create redis stream publisher: %w", err)
	}
	return NewPublisher(pub, logger), nil
}

// NewInProcessPublisher publishes on an in-memory channel. Used when Redis is not configured.
func NewInProcessPublisher(logger *logrus.Logger) (*Publisher, *gochannel.GoChannel) {
	ch := gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger(logger))
	return NewPublisher(ch, logger), ch
}

// Topic returns the topic for an event type
func Topic(eventType string) string {
	return "bookings." + eventType
}

// PublishBookingEvent marshals and publishes a booking event
func (p *Publisher) PublishBookingEvent(ctx context.Context, eventType string, b *models.Booking) error {
	event := BookingEvent{
		Header: Header{
			ID:          watermill.NewUUID(),
			PublishedAt: time.Now().UTC(),
		},
		Type:      eventType,
		BookingID: b.ID,
		TourID:    b.TourID,
		TourDate:  b.TourDate.Format("2006-01-02"),
		Seats:     b.Seats,
		Status:    b.Status,
		Total:     b.TotalAmount,
		Currency:  b.Currency,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal booking event: %w", err)
	}

	msg := message.NewMessage(event.Header.ID, payload)
	msg.SetContext(ctx)

	if err := p.pub.Publish(Topic(eventType), msg); err != nil {
		return fmt.Errorf("could not publish booking event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":   event.Header.ID,
		"event_type": eventType,
		"booking_id": b.ID,
	}).Debug("Booking event published")
	return nil
}

// Close closes the underlying publisher
func (p *Publisher) Close() error {
	return p.pub.Close()
}
