// Package http implements the HTTP and WebSocket-upgrade Listener (spec
// §4.6, §6.2): request parsing into a cms-object, TLS via cert/key or a
// PKCS12 bundle, and streaming responses via the HTTP-specific
// rctx.StreamHook.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/dispatchcore/dispatchcore/core/config"
	"github.com/dispatchcore/dispatchcore/core/dispatch"
	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/observability"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

const maxMultipartMemory = 32 << 20 // 32 MiB, matches net/http's own default

// UpgradeHandler is invoked for a request that negotiates a WebSocket
// upgrade (spec §4.6: "when the request negotiates an upgrade, delegates
// to the Session Registry"); the HTTP listener itself never imports
// transport/websocket to avoid a dependency cycle with the registry.
type UpgradeHandler func(w http.ResponseWriter, r *http.Request)

// Listener serves HTTP and hands requests to a Dispatcher.
type Listener struct {
	dispatcher *dispatch.Dispatcher
	log        logging.Logger
	upgrade    UpgradeHandler
}

// New returns an HTTP Listener. upgrade may be nil if no WebSocket
// upgrade support is configured for this host.
func New(d *dispatch.Dispatcher, log logging.Logger, upgrade UpgradeHandler) *Listener {
	return &Listener{dispatcher: d, log: log, upgrade: upgrade}
}

// ListenAndServe starts the HTTP server on addr, serving either plaintext
// or TLS depending on ssl.
func (l *Listener) ListenAndServe(ctx context.Context, addr string, ssl *config.SSLOptions) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: l,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if ssl == nil {
		return srv.ListenAndServe()
	}

	tlsCfg, err := buildTLSConfig(ssl)
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg
	return srv.ListenAndServeTLS("", "")
}

// buildTLSConfig supports either a certificate+key file pair or a PKCS12
// bundle with passphrase, converted once at startup (spec §6.2).
func buildTLSConfig(ssl *config.SSLOptions) (*tls.Config, error) {
	if ssl.PKCS12File != "" {
		cert, err := loadPKCS12(ssl.PKCS12File, ssl.Passphrase)
		if err != nil {
			return nil, err
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	cert, err := tls.LoadX509KeyPair(ssl.CertFile, ssl.KeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func loadPKCS12(path, passphrase string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, err
	}
	key, cert, err := pkcs12.Decode(data, passphrase)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// ServeHTTP assembles a cms-object, builds a Message, and blocks for the
// dispatcher's response (spec §4.6). A request negotiating a WebSocket
// upgrade is delegated instead of dispatched.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if l.upgrade != nil && isUpgradeRequest(r) {
		l.upgrade(w, r)
		return
	}

	start := time.Now()
	cms, err := BuildCMS(r)
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "bad_request", "message": err.Error()})
		return
	}

	requestID, _ := cms.GetString("request.request_id")
	msg := &message.Message{
		Variant:     message.VariantHTTPRest,
		SessionID:   requestID,
		Sink:        message.NewSink(),
		HTTPRequest: r,
	}

	l.dispatcher.Dispatch(r.Context(), msg, cms, r.URL.Path, dispatch.WithStreamHook(newStreamHook(w)))

	resp := <-msg.Sink
	observability.RecordDispatch("http", string(message.VariantHTTPRest), "ok", time.Since(start))
	writeResponse(w, resp)
}

func isUpgradeRequest(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// writeResponse writes a completed, non-streamed Response. A streaming
// handler already wrote and flushed its own body through the StreamHook,
// leaving resp nil.
func writeResponse(w http.ResponseWriter, resp *message.Response) {
	if resp == nil {
		return
	}
	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if resp.Raw != nil {
		w.WriteHeader(status)
		_, _ = w.Write(resp.Raw)
		return
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}

func writeJSONStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// BuildCMS parses method, URL, query, headers, cookies, and body
// (JSON/form/multipart) into the canonical cms-object shape (spec §6.2,
// §6.5). Exported so transport/websocket can reuse it to snapshot the
// cms-object from a WebSocket upgrade request.
func BuildCMS(r *http.Request) (rctx.CMS, error) {
	cms := rctx.NewCMS()

	reqInfo := cms["request"].(map[string]any)
	reqInfo["method"] = r.Method
	reqInfo["url"] = r.URL.String()
	reqInfo["path"] = r.URL.Path
	reqInfo["host"] = r.Host
	reqInfo["client_ip"] = clientIP(r)
	reqInfo["request_id"] = r.Header.Get("X-Request-Id")

	query := make(map[string]any, len(r.URL.Query()))
	for k, vs := range r.URL.Query() {
		query[k] = flattenValues(vs)
	}
	reqInfo["query"] = query

	headers := cms["headers"].(map[string]any)
	for k, vs := range r.Header {
		headers[strings.ToLower(k)] = flattenValues(vs)
	}

	cookies := cms["cookie"].(map[string]any)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	if err := parseBody(r, cms); err != nil {
		return nil, err
	}

	return cms, nil
}

func parseBody(r *http.Request, cms rctx.CMS) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case strings.Contains(mediaType, "application/json"):
		var body any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			return err
		}
		cms["body"] = body

	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return err
		}
		form := cms["form"].(map[string]any)
		for k, vs := range r.MultipartForm.Value {
			form[k] = flattenValues(vs)
		}
		if r.MultipartForm.File != nil {
			files := make(map[string]any, len(r.MultipartForm.File))
			for k, headers := range r.MultipartForm.File {
				names := make([]string, 0, len(headers))
				for _, h := range headers {
					names = append(names, h.Filename)
				}
				files[k] = names
			}
			form["files"] = files
		}

	case mediaType == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return err
		}
		form := cms["form"].(map[string]any)
		for k, vs := range r.PostForm {
			form[k] = flattenValues(vs)
		}

	default:
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		if len(raw) > 0 {
			cms["body"] = raw
		}
	}
	return nil
}

func flattenValues(vs []string) any {
	if len(vs) == 1 {
		return vs[0]
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}
