package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/michaelmargolis/6DoF-Coaster/coaster"
	"github.com/michaelmargolis/6DoF-Coaster/coaster/nl2"
	"github.com/michaelmargolis/6DoF-Coaster/comms"
	"github.com/michaelmargolis/6DoF-Coaster/onboard"
	"github.com/michaelmargolis/6DoF-Coaster/onboard/hardware"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "control")

var (
	ErrInboxFull = errors.New("command inbox full")
	ErrStopped   = errors.New("controller stopped")
)

const (
	DefaultFrame = 50 * time.Millisecond
	inboxSize    = 16
	publishEvery = 200 * time.Millisecond
)

// Controller is the fixed frame loop. It owns the ride context and is the only
// goroutine touching the chair, the coaster and the scheduler.
type Controller struct {
	Ctx     *ride.Context
	Chair   *onboard.Chair
	Coaster *coaster.Coaster
	Frame   time.Duration

	// Publish receives a status snapshot when something visible changed.
	Publish func(s comms.Snapshot)
	// Persist is called with intensity and park commands once applied.
	Persist func(cmd ride.Command)

	sched     Scheduler
	inbox     chan ride.Command
	quit      chan struct{}
	stopped   bool
	intensity ride.Status

	lastKey     string
	lastPublish time.Time
}

func NewController(chair *onboard.Chair, m *nl2.Messenger, ctx *ride.Context) *Controller {
	c := &Controller{
		Ctx:   ctx,
		Chair: chair,
		Frame: DefaultFrame,
		inbox: make(chan ride.Command, inboxSize),
		quit:  make(chan struct{}),
	}
	c.Coaster = coaster.New(m, ctx, c.apply, c.move)
	c.Coaster.SetFrameInterval(c.Frame)
	c.intensity = chair.SetIntensity(ctx.Intensity)
	c.sched.OnDone = c.taskDone
	return c
}

// Submit queues cmd for the next frame. It never blocks.
func (c *Controller) Submit(cmd ride.Command) error {
	select {
	case <-c.quit:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- cmd:
		return nil
	default:
		log.WithField("cmd", cmd).Warn("inbox full, command dropped")
		return ErrInboxFull
	}
}

// Done is closed once a quit command has been handled.
func (c *Controller) Done() <-chan struct{} {
	return c.quit
}

// Run services one frame per tick until ctx ends or a quit command arrives.
func (c *Controller) Run(ctx context.Context) error {
	if c.Frame <= 0 {
		c.Frame = DefaultFrame
	}
	c.Coaster.SetFrameInterval(c.Frame)

	t := time.NewTicker(c.Frame)
	defer t.Stop()

	log.WithField("frame", c.Frame).Info("control loop started")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.quit:
			c.shutdown()
			return nil
		case now := <-t.C:
			c.frame(ctx, now)
		}
	}
}

func (c *Controller) frame(ctx context.Context, now time.Time) {
	start := time.Now()
drain:
	for {
		select {
		case cmd := <-c.inbox:
			if err := c.Apply(cmd); err != nil {
				log.WithError(err).WithField("cmd", cmd).Warn("command failed")
			}
			if c.stopped {
				return
			}
		default:
			break drain
		}
	}

	if c.sched.Busy() {
		c.sched.Step(ctx, now)
	} else {
		c.Coaster.Service(ctx)
	}
	c.publish(now)

	if d := time.Since(start); d > c.Frame {
		log.WithField("ms", d.Milliseconds()).Debug("frame overran")
	}
}

func (c *Controller) shutdown() {
	c.sched.Cancel()
	if m := c.Chair.Output.SetEnable(false, c.Ctx.Commanded); m != nil {
		if err := m.Run(context.Background()); err != nil {
			log.WithError(err).Warn("wind down failed")
		}
	}
	log.Info("control loop stopped")
}

func (c *Controller) move(pose ride.Pose) {
	if err := c.Chair.Move(pose); err != nil {
		log.WithError(err).Debug("move failed")
	}
}

func (c *Controller) apply(cmd ride.Command) {
	if err := c.Apply(cmd); err != nil {
		log.WithError(err).WithField("cmd", cmd).Warn("command failed")
	}
}

// track keeps the commanded lengths in step with a slow move. The solved client
// lengths are left alone so a later ready move rises back to them.
func (c *Controller) track(m *hardware.SlowMove) Task {
	return Func(func(ctx context.Context, now time.Time) (bool, error) {
		done, err := m.Step(ctx, now)
		c.Ctx.Commanded = m.Current()
		return done, err
	})
}

// Apply carries out one command on the loop goroutine.
func (c *Controller) Apply(cmd ride.Command) error {
	out := c.Chair.Output
	log.WithField("cmd", cmd).Debug("apply")

	switch cmd.Kind {
	case ride.CmdEnable:
		out.SetEnable(true, c.Ctx.Commanded)
		c.Ctx.Enabled = true

	case ride.CmdDisable:
		if m := out.SetEnable(false, c.Ctx.Commanded); m != nil {
			c.sched.Motion(c.track(m))
		}
		c.Ctx.Enabled = false
		c.Ctx.Parked = out.Parked()

	case ride.CmdIdle:
		err := out.Park(true)
		c.Ctx.Parked = true
		c.sched.Motion(Hold(hardware.ParkDelay), c.track(out.MoveToIdle(c.Ctx.Lengths)))
		return err

	case ride.CmdReady:
		c.sched.Motion(c.track(out.MoveToReady(c.Ctx.Lengths)))

	case ride.CmdSwellForStairs:
		c.sched.Motion(out.SwellForAccess(c.Chair.Config.SwellHold))

	case ride.CmdParkPlatform:
		err := out.Park(true)
		c.Ctx.Parked = true
		c.sched.Motion(Hold(hardware.ParkDelay))
		return err

	case ride.CmdUnparkPlatform:
		c.Ctx.Parked = false
		return out.Park(false)

	case ride.CmdIntensity:
		if cmd.Value < ride.MinIntensity || cmd.Value > ride.MaxIntensity {
			return ride.ErrIntensityRange
		}
		c.intensity = c.Chair.SetIntensity(cmd.Value)
		c.persist(cmd)

	case ride.CmdActivate:
		c.sched.Ride(c.Coaster.ActivateTask())

	case ride.CmdDeactivate:
		c.sched.Cancel()
		c.Coaster.Deactivate()

	case ride.CmdDispatch:
		c.sched.Ride(c.Coaster.DispatchTask())

	case ride.CmdPause:
		c.Coaster.Pause()

	case ride.CmdResetVR:
		return c.Coaster.ResetVR()

	case ride.CmdEmergencyStop:
		c.sched.Cancel()
		c.Coaster.EmergencyStop()

	case ride.CmdLoadPark:
		if cmd.Path == "" {
			return ride.ErrMissingPark
		}
		c.sched.CancelRide()
		c.sched.Ride(c.Coaster.LoadParkTask(cmd.Paused, cmd.Path, int32(cmd.Value)))
		c.persist(cmd)

	case ride.CmdQuit:
		if !c.stopped {
			c.stopped = true
			close(c.quit)
		}

	default:
		return fmt.Errorf("%w: %v", ride.ErrUnknownCommand, cmd.Kind)
	}
	return nil
}

func (c *Controller) persist(cmd ride.Command) {
	if c.Persist != nil {
		c.Persist(cmd)
	}
}

func (c *Controller) taskDone(t Task, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		c.Coaster.Report(ride.Error(fmt.Sprintf("%v: %v", t, err)))
	}
}

// Pending names the queued tasks.
func (c *Controller) Pending() []string {
	return c.sched.Pending()
}

// Snapshot collects the collaborator view of the current frame.
func (c *Controller) Snapshot() comms.Snapshot {
	station := c.Coaster.StationSnapshot()
	return comms.Snapshot{
		Ride:         c.Ctx.State,
		Activated:    c.Ctx.Activated,
		Connection:   c.Coaster.ConnStatus(),
		Chair:        c.Chair.Output.Status(),
		Intensity:    c.intensity,
		Station:      uint32(station),
		StationFlags: station.Flags(),
		Session:      c.Ctx.Session,
		Speed:        c.Ctx.Speed,
		Pose:         c.Ctx.Pose,
		Lengths:      c.Ctx.Commanded,
		Pressures:    c.Chair.Output.Requested().Pressures,
		Parked:       c.Ctx.Parked,
		Enabled:      c.Ctx.Enabled,
	}
}

func (c *Controller) publish(now time.Time) {
	if c.Publish == nil {
		return
	}
	s := c.Snapshot()
	key := fmt.Sprintf("%v/%t/%v/%v/%v/%d/%t/%t",
		s.Ride, s.Activated, s.Connection, s.Chair, s.Intensity, s.Station, s.Parked, s.Enabled)
	if key == c.lastKey && now.Sub(c.lastPublish) < publishEvery {
		return
	}
	c.lastKey = key
	c.lastPublish = now
	c.Publish(s)
}
