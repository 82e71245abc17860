package rctx

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	dcerrors "github.com/dispatchcore/dispatchcore/core/errors"
	"github.com/dispatchcore/dispatchcore/core/message"
)

// Scope is the subset of the DI container a Context needs: resolving a
// service by key within the request's scoped instance cache. Defined here
// as an interface (rather than importing the concrete container type) so
// core/di and core/rctx do not need to import each other.
type Scope interface {
	Get(key any, kwargs map[string]any) (any, error)
	Close()
}

// StreamHook is implemented by a transport listener that supports
// streaming responses (spec §4.4.1); only the HTTP listener provides one.
type StreamHook interface {
	StartStream(status int, headers http.Header) error
	io.Writer
	Drain() error
}

// Context is created fresh per request and discarded at its end; it is
// never shared across goroutines (spec §3.3).
type Context struct {
	Msg      *message.Message
	CMS      CMS
	URL      string
	Segments map[string]string
	Scope    Scope
	Variant  message.Variant

	mu        sync.Mutex
	streaming bool
	stream    StreamHook
}

// New builds a fresh Context for one Message.
func New(msg *message.Message, cms CMS, url string, variant message.Variant, scope Scope) *Context {
	return &Context{
		Msg:      msg,
		CMS:      cms,
		URL:      url,
		Segments: make(map[string]string),
		Scope:    scope,
		Variant:  variant,
	}
}

// WithStreamHook attaches the transport-specific stream writer; only the
// HTTP listener calls this before handing the Context to the dispatcher.
func (c *Context) WithStreamHook(h StreamHook) *Context {
	c.stream = h
	return c
}

// IsStreaming reports whether StartStreamResponse has already succeeded.
func (c *Context) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// StartStreamResponse transitions the Context to streaming mode exactly
// once (spec §4.4.1). After success, Write/Drain are legal and the
// handler's return value is ignored by the dispatcher.
func (c *Context) StartStreamResponse(status int, headers http.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming {
		return fmt.Errorf("rctx: start_stream_response already called for this context")
	}
	if c.stream == nil {
		return fmt.Errorf("rctx: streaming not supported on this transport")
	}
	if err := c.stream.StartStream(status, headers); err != nil {
		return err
	}
	c.streaming = true
	return nil
}

// Write writes a chunk to the stream; only legal after StartStreamResponse.
func (c *Context) Write(p []byte) (int, error) {
	if !c.IsStreaming() {
		return 0, fmt.Errorf("rctx: write before start_stream_response")
	}
	return c.stream.Write(p)
}

// Drain flushes buffered stream output.
func (c *Context) Drain() error {
	if !c.IsStreaming() {
		return fmt.Errorf("rctx: drain before start_stream_response")
	}
	return c.stream.Drain()
}

// Respond writes a non-streaming result through the Message's response
// sink, JSON-encoding non-byte values (spec §4.4 step 5).
func (c *Context) Respond(value any) {
	if raw, ok := value.([]byte); ok {
		c.Msg.Reply(&message.Response{Status: 200, Raw: raw})
		return
	}
	c.Msg.Reply(&message.Response{
		Status:  200,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    value,
	})
}

// RespondError converts a DispatchError to its wire response (spec §7).
func (c *Context) RespondError(err *dcerrors.DispatchError) {
	c.Msg.Reply(&message.Response{
		Status:  err.Status(),
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body: map[string]any{
			"error":   string(err.Kind),
			"message": err.Message,
			"data":    err.Data,
		},
	})
}
