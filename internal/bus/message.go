package bus

import "time"

// NormalizedMessage is the platform-neutral form of one inbound delivery.
// Platform, ExternalChatID and MessageID together identify a delivery attempt
// and form the dedupe key.
type NormalizedMessage struct {
	Platform       string
	ExternalUserID string
	ExternalChatID string
	MessageID      string
	Text           string
	Timestamp      time.Time

	// InternalID, when set, bypasses the identity lookup (e.g. a connector
	// that already resolved the user via /identify).
	InternalID string
}

// DedupeKey returns the platform:chat:message identity used by the dedupe
// cache. Empty when any component is missing, which the cache treats as
// "never seen".
func (m NormalizedMessage) DedupeKey() string {
	if m.Platform == "" || m.ExternalChatID == "" || m.MessageID == "" {
		return ""
	}
	return m.Platform + ":" + m.ExternalChatID + ":" + m.MessageID
}

// Reply is the structured outcome of processing one message. Text is always
// non-empty: degraded modes carry a short bracketed error string and a
// ModelUsed marker ("N/A", "dedupe_cache") instead of failing the turn.
type Reply struct {
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
	ModelUsed        string    `json:"model_used"`
	ProcessingTimeMS float64   `json:"processing_time_ms"`
}
