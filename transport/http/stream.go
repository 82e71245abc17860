package http

import (
	"net/http"
)

// streamHook implements rctx.StreamHook over a live http.ResponseWriter,
// the only listener that supports spec §4.4.1's streaming transition.
type streamHook struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newStreamHook(w http.ResponseWriter) *streamHook {
	f, _ := w.(http.Flusher)
	return &streamHook{w: w, flusher: f}
}

// StartStream writes the response header exactly once and switches the
// connection to chunked transfer (spec §6.2: "streaming responses use
// chunked transfer").
func (h *streamHook) StartStream(status int, headers http.Header) error {
	dst := h.w.Header()
	for k, vs := range headers {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	h.w.WriteHeader(status)
	if h.flusher != nil {
		h.flusher.Flush()
	}
	return nil
}

// Write streams a chunk to the client.
func (h *streamHook) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

// Drain flushes buffered output, if the underlying writer supports it.
func (h *streamHook) Drain() error {
	if h.flusher != nil {
		h.flusher.Flush()
	}
	return nil
}
