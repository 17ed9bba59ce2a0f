package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/torch-to-flame/walkmate/internal/kvutil"
)

// userKeyPrefix is the key namespace for user profiles within the bucket.
const userKeyPrefix = "user."

// userProfile is the subset of the user document the notifier needs.
type userProfile struct {
	Name     string `json:"name"`
	FCMToken string `json:"fcmToken"`
}

// KVDirectory resolves device tokens from a JetStream KV bucket of user
// profiles, with an in-process cache of positive lookups.
//
// Tokens are cached for the process lifetime; a user who re-registers a
// device is picked up by the next process start. Negative lookups are not
// cached so a user who registers mid-walk gets notifications from the next
// rotation on.
type KVDirectory struct {
	kv    jetstream.KeyValue
	cache *xsync.Map[string, string]
}

// Compile-time assertion that KVDirectory implements Directory.
var _ Directory = (*KVDirectory)(nil)

// NewKVDirectory creates a directory on top of an existing KV bucket.
func NewKVDirectory(kv jetstream.KeyValue) *KVDirectory {
	return &KVDirectory{
		kv:    kv,
		cache: xsync.NewMap[string, string](),
	}
}

// OpenKVDirectory creates or opens the named bucket and returns a directory
// on top of it.
func OpenKVDirectory(ctx context.Context, js jetstream.JetStream, bucket string) (*KVDirectory, error) {
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "walkmate user profiles",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open user bucket: %w", err)
	}

	return NewKVDirectory(kv), nil
}

// DeviceToken returns the push destination registered for userID.
//
// Returns ErrNoDeviceToken when the user does not exist or has no token.
func (d *KVDirectory) DeviceToken(ctx context.Context, userID string) (string, error) {
	if token, ok := d.cache.Load(userID); ok {
		return token, nil
	}

	entry, err := d.kv.Get(ctx, userKeyPrefix+userID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", fmt.Errorf("user %s: %w", userID, ErrNoDeviceToken)
		}

		return "", fmt.Errorf("failed to look up user %s: %w", userID, err)
	}

	var profile userProfile
	if err := json.Unmarshal(entry.Value(), &profile); err != nil {
		return "", fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}

	if profile.FCMToken == "" {
		return "", fmt.Errorf("user %s: %w", userID, ErrNoDeviceToken)
	}

	d.cache.Store(userID, profile.FCMToken)

	return profile.FCMToken, nil
}
