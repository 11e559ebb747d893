// Package protocol implements the framed wire format the mailing server
// accepts on its TCP intake port.
//
// A frame is a fixed four-byte header (version, flags, status, reserved),
// the payload, and a terminating delimiter sequence. Payloads carrying the
// optimized flag are zstd-compressed; the intake side requires optimized
// frames and answers plain ones with a sidegrade status so the client can
// resend upgraded.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Version is the wire protocol version.
const Version = 1

// headerLen is the fixed frame header length.
const headerLen = 4

// MaxFrameSize caps a single frame, delimiter included.
const MaxFrameSize = 1 << 20

// Flag bits.
const (
	FlagNone      byte = 0
	FlagOptimized byte = 1 << 0
)

// Status codes.
const (
	StatusNone      byte = 0
	StatusOk        byte = 1
	StatusError     byte = 2
	StatusSidegrade byte = 3
)

// eolSeq terminates every frame.
var eolSeq = []byte("\r\n#EOL\r\n")

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize before
// its delimiter arrives.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// ErrBadVersion is returned for frames with an unknown protocol version.
var ErrBadVersion = errors.New("protocol: unsupported version")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	// EncodeAll/DecodeAll on shared instances are safe for concurrent use.
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// Message is a decoded frame.
type Message struct {
	Flags    byte
	Status   byte
	Reserved byte
	Payload  []byte
}

// NewSidegrade returns the response demanding an optimized resend.
func NewSidegrade() Message {
	return Message{Status: StatusSidegrade, Reserved: FlagOptimized}
}

// NewStatus returns a payload-free response with the given status.
func NewStatus(status byte) Message {
	return Message{Status: status}
}

// Encode serializes m into a complete frame, delimiter included. Payloads
// are zstd-compressed when the optimized flag is set.
func Encode(m Message) ([]byte, error) {
	payload := m.Payload
	if m.Flags&FlagOptimized != 0 && len(payload) > 0 {
		payload = zstdEncoder.EncodeAll(payload, nil)
	}

	frame := make([]byte, 0, headerLen+len(payload)+len(eolSeq))
	frame = append(frame, Version, m.Flags, m.Status, m.Reserved)
	frame = append(frame, payload...)
	frame = append(frame, eolSeq...)

	if len(frame) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return frame, nil
}

// Decode parses a frame body (delimiter already stripped) into a Message,
// decompressing optimized payloads.
func Decode(body []byte) (Message, error) {
	if len(body) < headerLen {
		return Message{}, fmt.Errorf("protocol: frame too short (%d bytes)", len(body))
	}
	if body[0] != Version {
		return Message{}, fmt.Errorf("%w: %d", ErrBadVersion, body[0])
	}

	m := Message{
		Flags:    body[1],
		Status:   body[2],
		Reserved: body[3],
		Payload:  body[headerLen:],
	}

	if m.Flags&FlagOptimized != 0 && len(m.Payload) > 0 {
		payload, err := zstdDecoder.DecodeAll(m.Payload, nil)
		if err != nil {
			return Message{}, fmt.Errorf("protocol: decompress payload: %w", err)
		}
		m.Payload = payload
	}
	return m, nil
}

// ReadFrame reads a single frame body from r, stripping the delimiter.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if len(buf) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		if bytes.HasSuffix(buf, eolSeq) {
			return buf[:len(buf)-len(eolSeq)], nil
		}
	}
}

// ReadMessage reads and decodes one message from r.
func ReadMessage(r *bufio.Reader) (Message, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(body)
}

// WriteMessage encodes m and writes the complete frame to w.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// Email is the wire payload: a subject and body destined for the
// configured recipient.
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EncodeEmail serializes e as an optimized message.
func EncodeEmail(e Email) (Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: marshal email: %w", err)
	}
	return Message{Flags: FlagOptimized, Payload: payload}, nil
}

// DecodeEmail parses a message payload into an Email.
func DecodeEmail(m Message) (Email, error) {
	var e Email
	if err := json.Unmarshal(m.Payload, &e); err != nil {
		return Email{}, fmt.Errorf("protocol: unmarshal email: %w", err)
	}
	return e, nil
}
