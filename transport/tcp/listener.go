// Package tcp implements the bespoke binary-framed TCP Listener (spec
// §4.6, §6.1). One connection: one framed request, one framed response,
// per spec.md §4.6 ("connection closed after one exchange unless the
// protocol message type permits continuation").
//
// Wire format grounded on bclib/listener/socket/socket_message.py
// (original_source): 1-byte type, 4-byte big-endian signed session-id
// length, session id UTF-8 bytes, 4-byte big-endian signed payload
// length, payload bytes (payload present only for AD_HOC/MESSAGE/CONNECT
// types). The retrieved original_source does not include the MessageType
// enum's integer values, so this package assigns its own stable ordering
// (documented below) rather than guessing the Python side's numbering.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dispatchcore/dispatchcore/core/dispatch"
	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/observability"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

// FrameType is the 1-byte message-type tag (spec §6.1).
type FrameType byte

const (
	FrameAdHoc      FrameType = 0
	FrameMessage    FrameType = 1
	FrameConnect    FrameType = 2
	FrameDisconnect FrameType = 3
	FrameNotExist   FrameType = 4
)

func (t FrameType) hasPayload() bool {
	return t == FrameAdHoc || t == FrameMessage || t == FrameConnect
}

// maxFrameLength bounds session-id and payload lengths read off the
// wire; spec §6.1: "length exceeding the agreed maximum aborts the
// connection with a protocol error."
const maxFrameLength = 16 << 20 // 16 MiB

// Frame is one decoded wire message.
type Frame struct {
	Type      FrameType
	SessionID string
	Payload   []byte
}

// ReadFrame decodes one Frame from r per the wire format above.
func ReadFrame(r *bufio.Reader) (*Frame, error) {
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	ft := FrameType(typeByte)

	sidLen, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if sidLen < 0 || sidLen > maxFrameLength {
		return nil, fmt.Errorf("tcp: invalid session-id length %d", sidLen)
	}
	sidBuf := make([]byte, sidLen)
	if _, err := readFull(r, sidBuf); err != nil {
		return nil, err
	}

	f := &Frame{Type: ft, SessionID: string(sidBuf)}
	if !ft.hasPayload() {
		return f, nil
	}

	payloadLen, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if payloadLen < 0 || payloadLen > maxFrameLength {
		return nil, fmt.Errorf("tcp: invalid payload length %d", payloadLen)
	}
	payload := make([]byte, payloadLen)
	if _, err := readFull(r, payload); err != nil {
		return nil, err
	}
	f.Payload = payload
	return f, nil
}

// WriteFrame encodes f to w per the wire format above.
func WriteFrame(w *bufio.Writer, f *Frame) error {
	if err := w.WriteByte(byte(f.Type)); err != nil {
		return err
	}
	if err := writeInt32(w, int32(len(f.SessionID))); err != nil {
		return err
	}
	if _, err := w.WriteString(f.SessionID); err != nil {
		return err
	}
	if f.Type.hasPayload() {
		if err := writeInt32(w, int32(len(f.Payload))); err != nil {
			return err
		}
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readInt32(r *bufio.Reader) (int32, error) {
	var buf [4]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func writeInt32(w *bufio.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Listener accepts TCP connections and dispatches one framed request per
// connection.
type Listener struct {
	dispatcher *dispatch.Dispatcher
	log        logging.Logger
}

// New returns a TCP Listener bound to d.
func New(d *dispatch.Dispatcher, log logging.Logger) *Listener {
	return &Listener{dispatcher: d, log: log}
}

// ListenAndServe accepts connections on addr until ctx is canceled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				l.log.Warn("tcp accept failed", "error", err)
				continue
			}
		}
		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	reader := bufio.NewReader(conn)
	frame, err := ReadFrame(reader)
	if err != nil {
		l.log.Warn("tcp frame read failed", "error", err)
		return
	}

	cms := rctx.NewCMS()
	reqInfo := cms["request"].(map[string]any)
	reqInfo["method"] = "TCP"
	reqInfo["session_id"] = frame.SessionID
	if len(frame.Payload) > 0 {
		var body any
		if json.Unmarshal(frame.Payload, &body) == nil {
			cms["body"] = body
		}
	}

	msg := &message.Message{
		Variant:   message.VariantTCPSocket,
		SessionID: frame.SessionID,
		Payload:   frame.Payload,
		Sink:      message.NewSink(),
		TCPConn:   conn,
	}

	l.dispatcher.Dispatch(ctx, msg, cms, "/tcp/"+frame.SessionID)

	resp := <-msg.Sink
	observability.RecordDispatch("tcp", string(message.VariantTCPSocket), "ok", time.Since(start))

	payload := encodeResponsePayload(resp)
	writer := bufio.NewWriter(conn)
	_ = WriteFrame(writer, &Frame{Type: frame.Type, SessionID: frame.SessionID, Payload: payload})
}

func encodeResponsePayload(resp *message.Response) []byte {
	if resp == nil {
		return nil
	}
	if resp.Raw != nil {
		return resp.Raw
	}
	data, err := json.Marshal(resp.Body)
	if err != nil {
		return nil
	}
	return data
}
