package network

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	MsgTypeHeartbeat    = 1
	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeCreateRoom   = 103
	MsgTypeStartGame    = 104
	MsgTypePlayerAction = 202
	MsgTypeBoardState   = 301
	MsgTypeGameStart    = 303
	MsgTypeGameEnd      = 305
	MsgTypeError        = 400
)

const headerSize = 4

var ErrPayloadTooLarge = errors.New("payload exceeds 65535 bytes")

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// Encode frames a message: 2 byte message id, 2 byte payload length, payload.
func Encode(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	packet := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[headerSize:], data)
	return packet, nil
}

// Decode parses one framed message. Trailing bytes past the declared length are ignored.
func Decode(frame []byte) (*Packet, error) {
	if len(frame) < headerSize {
		return nil, io.ErrShortBuffer
	}

	msgID := binary.BigEndian.Uint16(frame[0:2])
	length := binary.BigEndian.Uint16(frame[2:4])

	if len(frame) < headerSize+int(length) {
		return nil, io.ErrShortBuffer
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   frame[headerSize : headerSize+int(length)],
	}, nil
}

// ErrorMessage is the payload of MsgTypeError.
type ErrorMessage struct {
	Request uint16 `json:"request"`
	Message string `json:"message"`
}
