// Package command defines the command/response protocol spoken with the
// broker-reachable backends.
//
// A request is a {pattern, data, id} packet published on the channel named
// after the pattern. The backend answers on "<pattern>.reply" with a packet
// carrying the same id and exactly one of "response" or "err". Events are
// {pattern, data} packets without an id and never get an answer.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Pattern identifies a remote operation.
//
// Most operations use the object form {"cmd": "<name>"}; some backends
// listen on a bare string topic instead.
type Pattern struct {
	cmd   string
	topic string
}

// Cmd returns the object pattern {"cmd": name}.
func Cmd(name string) Pattern {
	return Pattern{cmd: name}
}

// Topic returns a bare string pattern.
func Topic(name string) Pattern {
	return Pattern{topic: name}
}

// Name returns the operation name without its wire decoration.
func (p Pattern) Name() string {
	if p.cmd != "" {
		return p.cmd
	}
	return p.topic
}

// Channel returns the broker channel the pattern is published on.
func (p Pattern) Channel() string {
	if p.cmd != "" {
		data, _ := json.Marshal(map[string]string{"cmd": p.cmd})
		return string(data)
	}
	return p.topic
}

// ReplyChannel returns the channel replies for this pattern arrive on.
func (p Pattern) ReplyChannel() string {
	return p.Channel() + ReplySuffix
}

// String implements fmt.Stringer.
func (p Pattern) String() string {
	return p.Channel()
}

// MarshalJSON encodes the pattern as it appears inside packets.
func (p Pattern) MarshalJSON() ([]byte, error) {
	if p.cmd != "" {
		return json.Marshal(map[string]string{"cmd": p.cmd})
	}
	return json.Marshal(p.topic)
}

// UnmarshalJSON accepts both pattern forms.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var topic string
	if err := json.Unmarshal(data, &topic); err == nil {
		*p = Topic(topic)
		return nil
	}
	var obj struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("command: invalid pattern %s: %w", data, err)
	}
	*p = Cmd(obj.Cmd)
	return nil
}

// ReplySuffix is appended to a request channel to form its reply channel.
const ReplySuffix = ".reply"

// SendOptions tune a single Send.
type SendOptions struct {
	// Timeout bounds the wait for the reply. Zero means the backend default.
	Timeout time.Duration
}

// SendOption is a functional option for Send.
type SendOption func(*SendOptions)

// WithTimeout overrides the backend default deadline for one call. A
// non-positive d keeps the default.
func WithTimeout(d time.Duration) SendOption {
	return func(o *SendOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// Sender performs request/response calls.
type Sender interface {
	// Send publishes the envelope and waits for exactly one correlated
	// reply. It returns the backend payload, a *RemoteError when the backend
	// answered with an error, or a normalized transport error (timeout,
	// unreachable broker). No retry is attempted.
	Send(ctx context.Context, pattern Pattern, payload any, opts ...SendOption) (json.RawMessage, error)
}

// Emitter publishes events with no reply and no delivery acknowledgment.
type Emitter interface {
	Emit(ctx context.Context, pattern Pattern, payload any) error
}

// Client is a handle on one named backend.
type Client interface {
	Sender
	Emitter
	// Backend returns the logical backend name.
	Backend() string
}

// RemoteError is an error reply from a backend, forwarded unchanged.
// Its shape is only interpreted by apierr.Normalize.
type RemoteError struct {
	Backend string
	Pattern Pattern
	Raw     json.RawMessage
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend %s answered %s with an error", e.Backend, e.Pattern.Name())
}

// Payload returns the error as received.
func (e *RemoteError) Payload() json.RawMessage {
	return e.Raw
}
