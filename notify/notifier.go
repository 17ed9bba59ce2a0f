package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/torch-to-flame/walkmate/internal/logging"
	"github.com/torch-to-flame/walkmate/internal/metrics"
	"github.com/torch-to-flame/walkmate/types"
)

// ErrNoDeviceToken is returned by a Directory when the user is unknown or has
// no push destination registered. The notifier silently skips such users.
var ErrNoDeviceToken = errors.New("no device token registered")

// notificationTitle is the fixed headline for pairing-change messages.
const notificationTitle = "New Walking Partner!"

// Directory resolves a participant's push destination.
//
// Implementations return ErrNoDeviceToken (possibly wrapped) when the user
// does not exist or has no token; any other error is treated as a transient
// lookup failure.
type Directory interface {
	DeviceToken(ctx context.Context, userID string) (string, error)
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the notifier's logger.
func WithLogger(logger types.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithMetrics sets the notifier's metrics collector.
func WithMetrics(m types.NotifyMetrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// Notifier fans pairing-change messages out to every affected participant.
type Notifier struct {
	nc      *nats.Conn
	dir     Directory
	subject string
	logger  types.Logger
	metrics types.NotifyMetrics
}

// New creates a Notifier publishing to the given NATS subject.
func New(nc *nats.Conn, dir Directory, subject string, opts ...Option) *Notifier {
	n := &Notifier{
		nc:      nc,
		dir:     dir,
		subject: subject,
		logger:  logging.NewSlogDefault(),
		metrics: metrics.NewNop(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Broadcast sends a pairing-change message to every user in every pair.
//
// It never returns an error: users without a registered destination are
// skipped, and delivery failures are logged. Callers invoke Broadcast after a
// rotation commit has already succeeded, so nothing here may fail the
// rotation.
func (n *Notifier) Broadcast(ctx context.Context, walkID string, pairs []types.Pair) {
	for _, pair := range pairs {
		msg := pairMessage(walkID, pair)

		for _, userID := range pair.Users {
			n.send(ctx, userID, msg)
		}
	}
}

// pairMessage builds the shared message for one pair. The body distinguishes
// the 2-person "new partner" phrasing from the 3-person "new group" phrasing.
func pairMessage(walkID string, pair types.Pair) types.PushMessage {
	isTriple := pair.IsTriple || len(pair.Users) > 2

	var body string
	if isTriple {
		body = fmt.Sprintf(
			"You've been matched with new partners in a group of %d. Look for number %d!",
			len(pair.Users), pair.Number,
		)
	} else {
		body = fmt.Sprintf(
			"You've been matched with a new partner. Look for number %d!",
			pair.Number,
		)
	}

	return types.PushMessage{
		Title: notificationTitle,
		Body:  body,
		Data: map[string]string{
			"walkId":     walkID,
			"pairId":     pair.ID,
			"pairColor":  pair.Color,
			"pairNumber": strconv.Itoa(pair.Number),
			"isTriple":   strconv.FormatBool(isTriple),
		},
	}
}

func (n *Notifier) send(ctx context.Context, userID string, msg types.PushMessage) {
	token, err := n.dir.DeviceToken(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoDeviceToken) {
			n.logger.Debug("no device token, skipping notification", "user_id", userID)
			n.metrics.RecordNotificationSkip("no_token")
		} else {
			n.logger.Warn("device token lookup failed, skipping notification",
				"user_id", userID, "error", err)
			n.metrics.RecordNotificationSkip("lookup_failed")
		}

		return
	}

	msg.Token = token

	data, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("failed to marshal notification", "user_id", userID, "error", err)
		n.metrics.RecordNotification(false)

		return
	}

	if err := n.nc.Publish(n.subject, data); err != nil {
		n.logger.Warn("failed to publish notification", "user_id", userID, "error", err)
		n.metrics.RecordNotification(false)

		return
	}

	n.logger.Debug("notification dispatched", "user_id", userID)
	n.metrics.RecordNotification(true)
}
