// Package message defines the transport-agnostic Message envelope (spec
// §3.4): what every Listener produces and what the Routing Dispatcher
// consumes. Each transport's concrete shape is modeled as a tagged struct
// rather than a class hierarchy, per spec §9's "Polymorphic Context"
// redesign guidance applied equally to the Message.
package message

import (
	"net"
	"net/http"
)

// Variant tags the originating transport/message kind.
type Variant string

const (
	VariantHTTPRest   Variant = "HTTP-rest"
	VariantHTTPWeb    Variant = "HTTP-web"
	VariantWebSocket  Variant = "WebSocket"
	VariantTCPSocket  Variant = "TCP-socket"
	VariantSourceClient Variant = "Source-client"
	VariantSourceServer Variant = "Source-server"
	VariantAMQP       Variant = "AMQP"
)

// WSFrameKind enumerates the kinds of WebSocket Message a session can
// produce (spec §3.4).
type WSFrameKind string

const (
	WSConnect    WSFrameKind = "CONNECT"
	WSText       WSFrameKind = "TEXT"
	WSBinary     WSFrameKind = "BINARY"
	WSClose      WSFrameKind = "CLOSE"
	WSDisconnect WSFrameKind = "DISCONNECT"
	WSError      WSFrameKind = "ERROR"
)

// Response is what a request/response transport's response sink delivers:
// either a structured cms-like value (JSON-encoded by the dispatcher) or a
// raw byte payload, plus transport metadata (status/headers for HTTP).
type Response struct {
	Status  int
	Headers http.Header
	Body    any    // encoded to JSON by the writer unless Raw is set
	Raw     []byte // when set, written verbatim instead of JSON-encoding Body
}

// Sink is the one-shot asynchronous channel a Listener reads to obtain the
// handler's result and write it back through the transport (spec §3.4).
// It is unbuffered-semantically one-shot: exactly one Response is ever
// sent.
type Sink chan *Response

// NewSink allocates a fresh one-shot response sink.
func NewSink() Sink { return make(Sink, 1) }

// Message is the normalized envelope every Listener produces. Only the
// fields relevant to the originating Variant are populated; callers must
// inspect Variant before dereferencing transport-specific fields.
type Message struct {
	Variant   Variant
	SessionID string
	Payload   []byte

	// Sink delivers the response for request/response transports (HTTP,
	// TCP). AMQP messages have no response path (fire-and-forget, spec
	// §3.4) and leave this nil.
	Sink Sink

	// HTTP fields.
	HTTPRequest *http.Request

	// TCP fields: the raw connection the framing was read from/written to.
	TCPConn net.Conn

	// WebSocket fields.
	WSFrame WSFrameKind

	// AMQP fields.
	AMQPHost       string
	AMQPQueue      string
	AMQPRoutingKey string
}

// HasResponseSink reports whether this Message expects a response
// written back (HTTP, TCP) as opposed to having no response path
// (AMQP, spec §3.4; WebSocket frames, whose handlers reply through the
// Session).
func (m *Message) HasResponseSink() bool {
	return m.Sink != nil
}

// Reply sends a response through the sink exactly once. Subsequent calls
// are no-ops, matching the one-shot contract.
func (m *Message) Reply(resp *Response) {
	if m.Sink == nil {
		return
	}
	select {
	case m.Sink <- resp:
	default:
	}
}
