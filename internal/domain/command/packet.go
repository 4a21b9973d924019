package command

import (
	"encoding/json"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
)

// RequestPacket is published for Send (with ID) and Emit (without).
type RequestPacket struct {
	Pattern Pattern `json:"pattern"`
	Data    any     `json:"data"`
	ID      string  `json:"id,omitempty"`
}

// ReplyPacket is what a backend publishes on the reply channel.
// Response and Err are nil when the key is absent.
type ReplyPacket struct {
	ID         string          `json:"id"`
	Response   json.RawMessage `json:"response"`
	Err        json.RawMessage `json:"err"`
	IsDisposed bool            `json:"isDisposed"`
}

// Outcome is the settled result of a call: exactly one of Result or Err.
type Outcome struct {
	Result json.RawMessage
	Err    json.RawMessage
}

// Settle resolves a correlated reply into its single outcome.
//
// A truthy err wins. Otherwise a present response is the result. A packet
// carrying neither (a loosely typed backend, or a bare dispose marker) is
// treated as success and the whole packet is handed back as the payload.
func Settle(raw []byte, pkt ReplyPacket) Outcome {
	if apierr.Truthy(pkt.Err) {
		return Outcome{Err: pkt.Err}
	}
	if pkt.Response != nil {
		return Outcome{Result: pkt.Response}
	}
	return Outcome{Result: json.RawMessage(raw)}
}

// Truthy reports whether a JSON result counts as a value (not absent, null,
// false, 0 or "").
func Truthy(raw json.RawMessage) bool {
	return apierr.Truthy(raw)
}
