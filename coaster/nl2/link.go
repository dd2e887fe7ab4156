package nl2

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAddr  = "127.0.0.1:15151"
	ReplyTimeout = 500 * time.Millisecond
)

var (
	ErrNotConnected  = errors.New("not connected to simulation host")
	ErrNotInPlayMode = errors.New("simulation host is not in play mode")

	log = logrus.WithField("pkg", "nl2")
)

// ConnState is the connection state towards the simulation host.
type ConnState int32

const (
	Disconnected ConnState = iota
	NotInSimMode
	Ready
)

func (s ConnState) String() string {
	switch s {
	case NotInSimMode:
		return "Not in sim mode"
	case Ready:
		return "Ready"
	default:
		return "Not Connected"
	}
}

// Dialer opens the stream to the host.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

func tcpDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		return d.DialContext(ctx, "tcp", addr)
	}
}

// Link is a request/reply connection to the host. One request is in flight at a time.
type Link struct {
	Addr    string
	Timeout time.Duration

	dial   Dialer
	lock   sync.Mutex
	conn   net.Conn
	nextID uint32
	state  atomic.Int32
	rtt    time.Duration
}

func NewLink(addr string) *Link {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Link{
		Addr:    addr,
		Timeout: ReplyTimeout,
		dial:    tcpDialer(ReplyTimeout),
		nextID:  1,
	}
}

// SetDialer replaces the TCP dialer, used for in-process hosts.
func (l *Link) SetDialer(d Dialer) {
	l.lock.Lock()
	l.dial = d
	l.lock.Unlock()
}

// Connect dials the host unless a connection is already open.
func (l *Link) Connect(ctx context.Context) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.conn != nil {
		return nil
	}
	conn, err := l.dial(ctx, l.Addr)
	if err != nil {
		l.setState(Disconnected)
		return fmt.Errorf("connecting to %s: %w", l.Addr, err)
	}
	l.conn = conn
	log.WithField("addr", l.Addr).Info("connected to simulation host")
	return nil
}

func (l *Link) IsConnected() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.conn != nil
}

func (l *Link) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.setState(Disconnected)
	return l.dropLocked()
}

func (l *Link) State() ConnState {
	return ConnState(l.state.Load())
}

func (l *Link) setState(s ConnState) {
	if prev := ConnState(l.state.Swap(int32(s))); prev != s {
		log.WithFields(logrus.Fields{"from": prev, "to": s}).Debug("connection state changed")
	}
}

// RoundTrip returns the duration of the last completed request.
func (l *Link) RoundTrip() time.Duration {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.rtt
}

// Request sends one message and waits for its reply payload.
// Any failure to obtain a well formed reply drops the connection and moves the state to Disconnected.
func (l *Link) Request(t MsgType, payload []byte) ([]byte, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.conn == nil {
		l.setState(Disconnected)
		return nil, ErrNotConnected
	}

	msg := Msg{Type: t, RequestID: l.nextID, Data: payload}
	l.nextID++
	frame, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := l.conn.SetDeadline(start.Add(l.Timeout)); err != nil {
		return nil, l.failLocked(t, fmt.Errorf("setting reply deadline: %w", err))
	}

	if _, err = l.conn.Write(frame); err != nil {
		return nil, l.failLocked(t, fmt.Errorf("%w: %v", ErrNoReply, err))
	}
	reply, err := ReadMsg(l.conn)
	if err != nil {
		return nil, l.failLocked(t, err)
	}
	l.rtt = time.Since(start)

	if reply.RequestID != msg.RequestID {
		log.WithFields(logrus.Fields{"sent": msg.RequestID, "got": reply.RequestID}).Debug("reply request id mismatch")
	}
	return reply.Data, nil
}

func (l *Link) failLocked(t MsgType, err error) error {
	log.WithFields(logrus.Fields{"type": t, "err": err}).Warn("request failed")
	l.setState(Disconnected)
	l.dropLocked()
	return err
}

func (l *Link) dropLocked() (err error) {
	if l.conn != nil {
		err = l.conn.Close()
		l.conn = nil
	}
	return
}
