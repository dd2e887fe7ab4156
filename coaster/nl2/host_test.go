package nl2

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"
)

// fakeHost is an in-process simulation host speaking the framed protocol over net.Pipe.
type fakeHost struct {
	mu sync.Mutex

	flags        uint32
	speed        float32
	text         string // telemetry answers with this text when set
	silent       bool   // drop every request without a reply
	garbage      bool   // answer telemetry with a short binary payload
	noDeadline   bool   // hand out client conns that refuse deadlines
	station      StationStatus
	ignoreManual bool
	nearest      [2]int32
	version      [4]byte

	requests []Msg
	dials    int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		version: [4]byte{2, 5, 7, 1},
		nearest: [2]int32{0, 0},
	}
}

func (h *fakeHost) dial(ctx context.Context, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	h.mu.Lock()
	h.dials++
	noDeadline := h.noDeadline
	h.mu.Unlock()
	go h.serve(server)
	if noDeadline {
		return deadlineless{client}, nil
	}
	return client, nil
}

var errDeadline = errors.New("deadlines not supported")

type deadlineless struct{ net.Conn }

func (deadlineless) SetDeadline(time.Time) error { return errDeadline }

func (h *fakeHost) serve(conn net.Conn) {
	defer conn.Close()
	for {
		msg, err := ReadMsg(conn)
		if err != nil {
			return
		}
		reply, ok := h.handle(msg)
		if !ok {
			continue
		}
		frame, _ := reply.Encode()
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

func (h *fakeHost) set(f func(h *fakeHost)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f(h)
}

func (h *fakeHost) sent(t MsgType) (msgs []Msg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.requests {
		if m.Type == t {
			msgs = append(msgs, m)
		}
	}
	return
}

// commands lists the request types that change ride state, in order.
func (h *fakeHost) commands() (types []MsgType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.requests {
		switch m.Type {
		case MsgGetVersion, MsgGetTelemetry, MsgGetStationState, MsgGetNearestStation:
		default:
			types = append(types, m.Type)
		}
	}
	return
}

func (h *fakeHost) handle(msg Msg) (Msg, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests = append(h.requests, msg)
	if h.silent {
		return Msg{}, false
	}

	reply := Msg{Type: MsgOK, RequestID: msg.RequestID}
	mode := func() bool { return len(msg.Data) == 9 && msg.Data[8] != 0 }

	switch msg.Type {
	case MsgGetVersion:
		reply.Type = MsgVersion
		reply.Data = h.version[:]

	case MsgGetTelemetry:
		switch {
		case h.text != "":
			reply.Type = MsgError
			reply.Data = []byte(h.text)
		case h.garbage:
			reply.Type = MsgTelemetry
			reply.Data = make([]byte, TelemetrySize-1)
		default:
			reply.Type = MsgTelemetry
			reply.Data = TelemetryRecord{State: h.flags, Speed: h.speed, PosY: 16, QuatW: 1}.Bytes()
		}

	case MsgGetNearestStation:
		reply.Data = payload(h.nearest[0], h.nearest[1])

	case MsgGetStationState:
		reply.Type = MsgStationState
		reply.Data = make([]byte, 4)
		binary.BigEndian.PutUint32(reply.Data, uint32(h.station))

	case MsgSetManualMode:
		if !h.ignoreManual {
			h.toggle(mode(), ManualMode, 0)
		}

	case MsgSetGates:
		h.toggle(!mode(), GatesCanOpen, GatesCanClose)

	case MsgSetHarness:
		h.toggle(!mode(), HarnessCanOpen, HarnessCanClose)

	case MsgSetFlyerCar:
		h.toggle(!mode(), FlyerCarCanUnlock, FlyerCarCanLock)

	case MsgSetPlatform:
		h.toggle(mode(), PlatformCanRaise, PlatformCanLower)

	case MsgDispatch:
		h.station &^= TrainInStation | CurrentTrainInStation | CanDispatch
	}

	if h.station&(GatesCanClose|HarnessCanClose|FlyerCarCanLock|PlatformCanLower) == 0 &&
		h.station.Has(TrainInStation) {
		h.station |= CanDispatch
	}
	return reply, true
}

// toggle sets on and clears off when cond holds, and the reverse otherwise.
func (h *fakeHost) toggle(cond bool, on, off StationStatus) {
	if cond {
		h.station = h.station&^off | on
	} else {
		h.station = h.station&^on | off
	}
}

// newTestMessenger returns a connected messenger backed by a fake host.
func newTestMessenger() (*fakeHost, *Messenger) {
	host := newFakeHost()
	link := NewLink("fake:15151")
	link.Timeout = 50 * time.Millisecond
	link.SetDialer(host.dial)
	link.Connect(context.Background())
	return host, NewMessenger(link)
}
