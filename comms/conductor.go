package comms

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "comms")

var ErrNoController = errors.New("no controller attached")

const (
	clientQueue  = 8
	writeTimeout = time.Second
)

// Snapshot is the collaborator view of the ride: state, status lines with severity,
// the station bitfield and the current motion.
type Snapshot struct {
	Ride         ride.State      `json:"ride"`
	Activated    bool            `json:"activated"`
	Connection   ride.Status     `json:"connection"`
	Chair        ride.Status     `json:"chair"`
	Intensity    ride.Status     `json:"intensity"`
	Station      uint32          `json:"station"`
	StationFlags map[string]bool `json:"station_flags"`
	Session      string          `json:"session,omitempty"`
	Speed        float64         `json:"speed"`
	Pose         ride.Pose       `json:"pose"`
	Lengths      ride.Lengths    `json:"lengths"`
	Pressures    [6]float64      `json:"pressures"`
	Parked       bool            `json:"parked"`
	Enabled      bool            `json:"enabled"`
}

// Submitter accepts commands for the control loop.
type Submitter interface {
	Submit(cmd ride.Command) error
}

type client struct {
	conn *websocket.Conn
	send chan Snapshot
}

// Conductor fans snapshots out to websocket clients and feeds operator commands to
// the controller.
type Conductor struct {
	Controller Submitter

	lock    sync.RWMutex
	latest  Snapshot
	clients map[*client]struct{}
}

type ConductorInterface interface {
	ProcessCommand(cmd Cmd) error
}

func NewConductor(ctrl Submitter) *Conductor {
	return &Conductor{
		Controller: ctrl,
		clients:    make(map[*client]struct{}),
	}
}

// ProcessCommand parses and forwards one symbolic command.
func (c *Conductor) ProcessCommand(cmd Cmd) error {
	rc, err := cmd.Command()
	if err != nil {
		log.WithError(err).WithField("cmd", cmd.Cmd).Warn("rejected command")
		return err
	}
	if c.Controller == nil {
		return ErrNoController
	}
	log.WithField("cmd", rc).Info("operator command")
	return c.Controller.Submit(rc)
}

// Publish stores a deep copy of s and queues it for every client. Slow clients miss
// snapshots rather than block the caller.
func (c *Conductor) Publish(s Snapshot) {
	snap := deepcopy.Copy(s).(Snapshot)

	c.lock.Lock()
	c.latest = snap
	for cl := range c.clients {
		select {
		case cl.send <- snap:
		default:
			log.Debug("client queue full, dropping snapshot")
		}
	}
	c.lock.Unlock()
}

// Latest returns a copy of the most recent snapshot.
func (c *Conductor) Latest() Snapshot {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return deepcopy.Copy(c.latest).(Snapshot)
}

// Clients is the number of attached websocket clients.
func (c *Conductor) Clients() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.clients)
}

// AddClient pushes the latest snapshot and every later one to conn until a write
// fails or done is closed. It blocks and closes conn on return.
func (c *Conductor) AddClient(conn *websocket.Conn, done <-chan struct{}) {
	cl := &client{conn: conn, send: make(chan Snapshot, clientQueue)}
	cl.send <- c.Latest()

	c.lock.Lock()
	c.clients[cl] = struct{}{}
	c.lock.Unlock()
	log.WithField("remote", conn.RemoteAddr()).Info("status client attached")

	defer func() {
		c.lock.Lock()
		delete(c.clients, cl)
		c.lock.Unlock()
		conn.Close()
		log.WithField("remote", conn.RemoteAddr()).Info("status client detached")
	}()

	for {
		select {
		case <-done:
			return
		case snap := <-cl.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				log.WithError(err).Debug("status write failed")
				return
			}
		}
	}
}
