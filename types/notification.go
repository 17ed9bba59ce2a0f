package types

// PushMessage is the payload handed to the push-messaging transport.
//
// Delivery is fire-and-forget: the engine publishes the message and tracks no
// confirmation. All Data values are strings so the payload survives transports
// that only carry string maps.
type PushMessage struct {
	// Token is the destination device token resolved from the user directory.
	Token string `json:"token"`

	// Title is the notification headline.
	Title string `json:"title"`

	// Body is the human-readable notification text.
	Body string `json:"body"`

	// Data carries the pairing context: walkId, pairId, pairColor,
	// pairNumber and isTriple.
	Data map[string]string `json:"data,omitempty"`
}
