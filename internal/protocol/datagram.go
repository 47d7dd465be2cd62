package protocol

import (
	"encoding/binary"
	"fmt"
)

// Media datagram layout: [IDLen:4 LE][SenderID:IDLen][Payload:N]
// Little-endian matches the clients already in the field.
const (
	DatagramHeaderSize = 4
	MaxSenderIDLen     = 64
)

// Datagram is a parsed media envelope. Payload aliases the buffer it was parsed from.
type Datagram struct {
	SenderID string
	Payload  []byte
}

// ParseDatagram validates the envelope of a single UDP datagram.
func ParseDatagram(data []byte) (Datagram, error) {
	if len(data) < DatagramHeaderSize {
		return Datagram{}, fmt.Errorf("datagram too short: expected at least %d bytes, got %d",
			DatagramHeaderSize, len(data))
	}
	idLen := binary.LittleEndian.Uint32(data[:DatagramHeaderSize])
	if idLen == 0 || idLen > MaxSenderIDLen {
		return Datagram{}, fmt.Errorf("invalid sender id length: %d", idLen)
	}
	end := DatagramHeaderSize + int(idLen)
	if len(data) < end {
		return Datagram{}, fmt.Errorf("datagram truncated: sender id needs %d bytes, got %d",
			idLen, len(data)-DatagramHeaderSize)
	}
	return Datagram{
		SenderID: string(data[DatagramHeaderSize:end]),
		Payload:  data[end:],
	}, nil
}

// EncodeDatagram builds the envelope a client sends to a relay.
func EncodeDatagram(senderID string, payload []byte) []byte {
	buf := make([]byte, DatagramHeaderSize+len(senderID)+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(senderID)))
	copy(buf[DatagramHeaderSize:], senderID)
	copy(buf[DatagramHeaderSize+len(senderID):], payload)
	return buf
}
