// Package frame converts envelopes to and from their JSON wire frames.
//
// One WebSocket text message carries exactly one frame; the WebSocket layer
// supplies message boundaries, so no extra length prefix is needed. Binary
// leaf payloads are base64-encoded inside the frame so a frame is always
// structured text.
package frame

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dayuer/botlink-go/internal/content"
)

// Codec errors. Inbound frames failing these are dropped and logged; the
// connection continues.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownVariant = errors.New("unknown content variant")
)

// RoutingKey identifies a logical connection target: the (api_key, platform)
// pair. It is the unique lookup key in the connection registry.
type RoutingKey struct {
	APIKey   string `json:"api_key"`
	Platform string `json:"platform"`
}

// String renders the key for log lines and map-free comparisons.
func (k RoutingKey) String() string {
	return k.APIKey + "/" + k.Platform
}

// IsZero reports whether the key is unset.
func (k RoutingKey) IsZero() bool {
	return k.APIKey == "" && k.Platform == ""
}

// Kind discriminates standard content frames from the custom escape.
type Kind string

const (
	// KindStandard frames carry validated ReplyContent.
	KindStandard Kind = "standard"
	// KindCustom frames carry an opaque payload bypassing content
	// validation. Adapters use them for control traffic (heartbeats,
	// capability negotiation).
	KindCustom Kind = "custom"
)

// Envelope is the unit of wire transmission: a reply set (or an opaque
// custom payload) plus addressing metadata.
type Envelope struct {
	MessageID string
	Target    RoutingKey
	Timestamp time.Time
	Kind      Kind
	Content   content.ReplySet // KindStandard
	Custom    map[string]any   // KindCustom
}

// NewEnvelope wraps a reply set for transmission to target. Message ids are
// UUIDv4, unique without per-connection state.
func NewEnvelope(target RoutingKey, set content.ReplySet) Envelope {
	return Envelope{
		MessageID: uuid.NewString(),
		Target:    target,
		Timestamp: time.Now(),
		Kind:      KindStandard,
		Content:   set,
	}
}

// NewCustomEnvelope wraps an opaque control payload for transmission.
func NewCustomEnvelope(target RoutingKey, payload map[string]any) Envelope {
	return Envelope{
		MessageID: uuid.NewString(),
		Target:    target,
		Timestamp: time.Now(),
		Kind:      KindCustom,
		Custom:    payload,
	}
}
