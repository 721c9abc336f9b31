package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dukerupert/chorely/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Kind says why a chore push was sent.
type Kind string

const (
	KindOverdue  Kind = "overdue"
	KindAssigned Kind = "assigned"
)

// Payload is the JSON the service worker receives.
type Payload struct {
	Kind    Kind       `json:"kind"`
	ChoreID int64      `json:"chore_id"`
	Title   string     `json:"title"`
	Body    string     `json:"body"`
	URL     string     `json:"url"`
	Tag     string     `json:"tag"`
	DueAt   *time.Time `json:"due_at,omitempty"`
}

// OverduePayload reminds the assignee that c is past its due date.
func OverduePayload(c *model.Chore) Payload {
	p := Payload{
		Kind:    KindOverdue,
		ChoreID: c.ID,
		Title:   "Chore overdue",
		Body:    c.Name + " is overdue",
		URL:     fmt.Sprintf("/chores/%d", c.ID),
		Tag:     fmt.Sprintf("chore-overdue-%d", c.ID),
		DueAt:   c.NextExecutionDate,
	}
	if c.NextExecutionDate != nil {
		p.Body = fmt.Sprintf("%s was due %s", c.Name, c.NextExecutionDate.Format("Mon Jan 2"))
	}
	return p
}

// AssignedPayload tells the new assignee that c is their turn.
func AssignedPayload(c *model.Chore) Payload {
	p := Payload{
		Kind:    KindAssigned,
		ChoreID: c.ID,
		Title:   "It's your turn",
		Body:    c.Name,
		URL:     fmt.Sprintf("/chores/%d", c.ID),
		Tag:     fmt.Sprintf("chore-assigned-%d", c.ID),
		DueAt:   c.NextExecutionDate,
	}
	if c.NextExecutionDate != nil {
		p.Body = fmt.Sprintf("%s, due %s", c.Name, c.NextExecutionDate.Format("Mon Jan 2"))
	}
	return p
}

// options maps a payload to delivery hints. Overdue reminders are urgent but
// stale after half a day; an assignment stays useful until the next one.
// The topic lets the push service replace an undelivered push for the same
// chore.
func (p Payload) options() (ttl int, urgency webpush.Urgency, topic string) {
	topic = fmt.Sprintf("chore-%d", p.ChoreID)
	if p.Kind == KindOverdue {
		return 12 * 60 * 60, webpush.UrgencyHigh, topic
	}
	return 24 * 60 * 60, webpush.UrgencyNormal, topic
}

// Sender delivers a payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// Service handles sending web push notifications.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
}

// NewService creates a new push service with VAPID keys.
func NewService(publicKey, privateKey string) *Service {
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: "mailto:noreply@chorely.app",
	}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send delivers a chore push to one subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	ttl, urgency, topic := payload.options()

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             ttl,
		Urgency:         urgency,
		Topic:           topic,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push %s for chore %d: service returned %d", payload.Kind, payload.ChoreID, resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
