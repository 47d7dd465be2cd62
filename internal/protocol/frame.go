// Package protocol implements the control-channel framing and the media datagram envelope.
//
// Control frame layout: [Length:4 BE][Type:1][Body:Length-1]
// The body is a JSON document; byte fields are base64 encoded.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	LengthSize = 4
	TypeSize   = 1
	HeaderSize = LengthSize + TypeSize
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrEmptyFrame    = errors.New("empty frame")
	ErrUnknownType   = errors.New("unknown message type")
	ErrMalformed     = errors.New("malformed message body")
)

// Encode renders m as a complete length-prefixed frame.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[0:LengthSize], uint32(TypeSize+len(body)))
	buf[LengthSize] = byte(m.Type())
	copy(buf[HeaderSize:], body)
	return buf, nil
}

// Payload strips the length prefix from a frame produced by Encode. Message-oriented
// transports (WebSocket) carry the payload alone.
func Payload(frame []byte) []byte {
	if len(frame) < LengthSize {
		return nil
	}
	return frame[LengthSize:]
}

// FrameType reports the type byte of an encoded frame.
func FrameType(frame []byte) Type {
	if len(frame) < HeaderSize {
		return 0
	}
	return Type(frame[LengthSize])
}

// DecodePayload parses a type byte followed by a JSON body.
func DecodePayload(p []byte) (Message, error) {
	if len(p) < TypeSize {
		return nil, ErrEmptyFrame
	}
	t := Type(p[0])
	m, ok := newMessage(t)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(t))
	}
	body := p[TypeSize:]
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s has no body", ErrMalformed, t)
	}
	if err := json.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
	}
	return m, nil
}

// ReadFrame reads exactly one frame from r. maxSize bounds the declared length.
// A clean close before the first header byte yields io.EOF.
func ReadFrame(r io.Reader, maxSize int) (Message, error) {
	var hdr [LengthSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(n) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, n, maxSize)
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return DecodePayload(p)
}

// WriteFrame encodes m and writes it to w in one call.
func WriteFrame(w io.Writer, m Message) error {
	buf, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// IsProtocolError reports whether err means the peer sent something undecodable
// rather than the transport failing.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrEmptyFrame) ||
		errors.Is(err, ErrUnknownType) ||
		errors.Is(err, ErrMalformed)
}
