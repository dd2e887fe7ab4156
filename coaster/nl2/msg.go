package nl2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MsgType identifies a NoLimits 2 telemetry server message.
type MsgType uint16

const (
	MsgOK                MsgType = 1
	MsgError             MsgType = 2
	MsgGetVersion        MsgType = 3
	MsgVersion           MsgType = 4
	MsgGetTelemetry      MsgType = 5
	MsgTelemetry         MsgType = 6
	MsgGetNearestStation MsgType = 11
	MsgGetStationState   MsgType = 14
	MsgStationState      MsgType = 15
	MsgSetManualMode     MsgType = 16
	MsgDispatch          MsgType = 17
	MsgSetGates          MsgType = 18
	MsgSetHarness        MsgType = 19
	MsgSetPlatform       MsgType = 20
	MsgSetFlyerCar       MsgType = 21
	MsgLoadPark          MsgType = 24
	MsgClosePark         MsgType = 25
	MsgSetPause          MsgType = 27
	MsgResetPark         MsgType = 28
	MsgSelectSeat        MsgType = 29
	MsgSetAttractionMode MsgType = 30
	MsgRecenterVR        MsgType = 31
)

const (
	startByte = 'N'
	endByte   = 'L'
	headerLen = 9 // start byte, type, request id, payload size
)

var (
	ErrNoReply        = errors.New("no reply from simulation host")
	ErrFraming        = errors.New("invalid message framing")
	ErrPayloadSize    = errors.New("unexpected payload size")
	ErrPayloadTooLong = errors.New("payload exceeds 65535 bytes")
)

// Msg is one framed message: 'N' | type u16 | request id u32 | size u16 | payload | 'L', big endian.
type Msg struct {
	Type      MsgType
	RequestID uint32
	Data      []byte
}

func (m Msg) Encode() ([]byte, error) {
	if len(m.Data) > math.MaxUint16 {
		return nil, ErrPayloadTooLong
	}

	buf := make([]byte, headerLen+len(m.Data)+1)
	buf[0] = startByte
	binary.BigEndian.PutUint16(buf[1:3], uint16(m.Type))
	binary.BigEndian.PutUint32(buf[3:7], m.RequestID)
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(m.Data)))
	copy(buf[headerLen:], m.Data)
	buf[len(buf)-1] = endByte
	return buf, nil
}

// ReadMsg reads exactly one framed message from r.
// A stream that ends before the first byte yields ErrNoReply, a bad start or end byte
// ErrFraming and a payload shorter than its declared size ErrPayloadSize.
func ReadMsg(r io.Reader) (m Msg, err error) {
	var hdr [headerLen]byte

	if _, err = io.ReadFull(r, hdr[:1]); err != nil {
		return m, fmt.Errorf("%w: %v", ErrNoReply, err)
	}
	if hdr[0] != startByte {
		return m, fmt.Errorf("%w: expected start byte 0x4E got 0x%02X", ErrFraming, hdr[0])
	}
	if _, err = io.ReadFull(r, hdr[1:]); err != nil {
		return m, fmt.Errorf("%w: incomplete header: %v", ErrFraming, err)
	}

	m.Type = MsgType(binary.BigEndian.Uint16(hdr[1:3]))
	m.RequestID = binary.BigEndian.Uint32(hdr[3:7])
	size := int(binary.BigEndian.Uint16(hdr[7:9]))

	m.Data = make([]byte, size)
	if _, err = io.ReadFull(r, m.Data); err != nil {
		return m, fmt.Errorf("%w: expected %d bytes: %v", ErrPayloadSize, size, err)
	}

	var end [1]byte
	if _, err = io.ReadFull(r, end[:]); err != nil {
		return m, fmt.Errorf("%w: missing trailer: %v", ErrFraming, err)
	}
	if end[0] != endByte {
		return m, fmt.Errorf("%w: expected trailer 0x4C got 0x%02X", ErrFraming, end[0])
	}

	return m, nil
}
