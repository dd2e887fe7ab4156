package nl2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	flagReady  = 1 << 0
	flagPaused = 1 << 2

	// TelemetrySize is the length of a binary telemetry payload.
	TelemetrySize = 8*4 + 11*4
)

// TelemetryRecord is the wire layout of a TELEMETRY reply.
type TelemetryRecord struct {
	State        uint32
	Frame        uint32
	ViewMode     uint32
	CoasterIndex uint32
	CoasterStyle uint32
	Train        uint32
	Car          uint32
	Seat         uint32
	Speed        float32
	PosX         float32
	PosY         float32
	PosZ         float32
	QuatX        float32
	QuatY        float32
	QuatZ        float32
	QuatW        float32
	GForceX      float32
	GForceY      float32
	GForceZ      float32
}

// TelemetrySample is an immutable telemetry snapshot.
type TelemetrySample struct {
	TelemetryRecord
	Received time.Time
}

// ParseTelemetry decodes a binary telemetry payload.
func ParseTelemetry(data []byte) (*TelemetrySample, error) {
	if len(data) != TelemetrySize {
		return nil, fmt.Errorf("%w: telemetry is %d bytes, want %d", ErrPayloadSize, len(data), TelemetrySize)
	}
	tm := new(TelemetrySample)
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &tm.TelemetryRecord); err != nil {
		return nil, err
	}
	return tm, nil
}

// Bytes encodes the record in wire layout.
func (r TelemetryRecord) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, r)
	return buf.Bytes()
}

func (r TelemetryRecord) IsReady() bool  { return r.State&flagReady != 0 }
func (r TelemetryRecord) IsPaused() bool { return r.State&flagPaused != 0 }

// Quat returns the orientation with W as the scalar part.
func (r TelemetryRecord) Quat() mgl64.Quat {
	return mgl64.Quat{
		W: float64(r.QuatW),
		V: mgl64.Vec3{float64(r.QuatX), float64(r.QuatY), float64(r.QuatZ)},
	}
}

// isNotInPlay reports whether a reply is the host's textual "not in play mode" error.
func isNotInPlay(reply []byte) bool {
	s := string(reply)
	return strings.Contains(s, "Not in play mode") || strings.Contains(s, "Application is busy")
}
