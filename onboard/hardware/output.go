package hardware

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/sirupsen/logrus"
)

const (
	// ParkDelay is the settle time after retracting the park piston.
	ParkDelay = 500 * time.Millisecond
	// TransitionTime is the duration of enable, idle and ready moves.
	TransitionTime = time.Second

	gravity = 9.81
)

// Output converts actuator lengths to muscle pressures and sends them to a Driver.
// It carries the enable and park state of the platform.
type Output struct {
	Limits Limits

	driver   Driver
	lock     sync.Mutex
	enabled  bool
	piston   bool
	weight   float64
	disabled ride.Lengths
	winddown ride.Lengths

	requested PressureCommand
	actual    [6]float64
	readBack  bool
	sendErr   error

	prevLen  [6]float64
	prevTime time.Time
	Velocity [6]float64 // m/s per muscle
	Force    [6]float64 // N per muscle, estimate only

	clock func() time.Time
}

// NewOutput creates a disabled, parked output. weight is the total moving mass in kg.
func NewOutput(d Driver, l Limits, weight float64) *Output {
	o := &Output{
		Limits:   l,
		driver:   d,
		weight:   weight,
		disabled: ride.Uniform(l.DisabledLength),
		winddown: ride.Uniform(l.ProppingLength),
		clock:    time.Now,
	}
	_, o.readBack = d.(PressureReader)
	return o
}

func (o *Output) Enabled() bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.enabled
}

// Parked reports whether the park piston flag is clear.
func (o *Output) Parked() bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return !o.piston
}

// DisabledLengths is the propped rest position.
func (o *Output) DisabledLengths() ride.Lengths {
	return o.disabled
}

// SetPayload sets the total moving weight in kg.
func (o *Output) SetPayload(kg float64) {
	o.lock.Lock()
	o.weight = kg
	o.lock.Unlock()
	log.WithField("kg", kg).Debug("payload set")
}

func (o *Output) Payload() float64 {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.weight
}

// MovePlatform sends lengths only while the platform is enabled.
func (o *Output) MovePlatform(lengths ride.Lengths) error {
	if !o.Enabled() {
		return nil
	}
	return o.moveTo(lengths)
}

// SetEnable changes the enabled flag. Disabling clears the piston flag and returns the
// move from current down to the disabled position; otherwise it returns nil.
func (o *Output) SetEnable(state bool, current ride.Lengths) *SlowMove {
	o.lock.Lock()
	if o.enabled == state {
		o.lock.Unlock()
		return nil
	}
	o.enabled = state
	if !state {
		o.piston = false
	}
	o.lock.Unlock()

	log.WithField("enabled", state).Info("platform enable changed")
	if state {
		return nil
	}
	return o.SlowMove(current, o.disabled, TransitionTime)
}

// SlowMove builds an interpolated move that bypasses the enabled flag.
func (o *Output) SlowMove(start, end ride.Lengths, d time.Duration) *SlowMove {
	return newSlowMove(o.moveTo, start, end, d)
}

// MoveToIdle lowers from the client position to the disabled position.
func (o *Output) MoveToIdle(current ride.Lengths) *SlowMove {
	log.Info("move to idle position")
	return o.SlowMove(current, o.disabled, TransitionTime)
}

// MoveToReady raises from the disabled position to the client position.
func (o *Output) MoveToReady(current ride.Lengths) *SlowMove {
	log.Info("move to ready position")
	return o.SlowMove(o.disabled, current, TransitionTime)
}

// SwellForAccess raises to the propping length, holds for hold and drops back.
func (o *Output) SwellForAccess(hold time.Duration) *Swell {
	log.WithField("hold", hold).Info("start swelling for access")
	return &Swell{
		up:   o.SlowMove(o.disabled, o.winddown, TransitionTime),
		down: o.SlowMove(o.winddown, o.disabled, TransitionTime),
		hold: hold,
	}
}

// Park sets the piston flag (parked clears it) and resends the last pressures with
// the new flag. The caller waits ParkDelay after parking.
func (o *Output) Park(parked bool) error {
	o.lock.Lock()
	o.piston = !parked
	cmd := o.requested
	cmd.Piston = o.piston
	o.lock.Unlock()

	log.WithField("parked", parked).Info("platform park state changed")
	return o.send(cmd)
}

func (o *Output) moveTo(lengths ride.Lengths) error {
	now := o.clock()

	o.lock.Lock()
	dt := now.Sub(o.prevTime).Seconds()
	o.prevTime = now
	load := o.weight / 6

	var cmd PressureCommand
	for i, l := range lengths {
		muscle := l - o.Limits.FixedLength
		cmd.Lengths[i] = l
		cmd.Pressures[i] = PressureFor(o.Limits, muscle)

		if dt > 0 && dt < 1 {
			v := (muscle - o.prevLen[i]) / 1000 / dt
			o.Force[i] = load * gravity * (1 + (v-o.Velocity[i])/dt/gravity)
			o.Velocity[i] = v
		}
		o.prevLen[i] = muscle
	}
	cmd.Piston = o.piston
	o.lock.Unlock()

	return o.send(cmd)
}

func (o *Output) send(cmd PressureCommand) error {
	if o.driver == nil {
		return ErrNoDriver
	}
	err := o.driver.Send(cmd)

	o.lock.Lock()
	defer o.lock.Unlock()
	o.requested = cmd
	if err != nil {
		if o.sendErr == nil {
			log.WithError(err).Error("error sending to muscle controller")
		}
		o.sendErr = err
		return fmt.Errorf("sending pressures: %w", err)
	}
	o.sendErr = nil

	if r, ok := o.driver.(PressureReader); ok {
		actual, err := r.GetPressure()
		if err != nil {
			log.WithError(err).Debug("pressure read failed")
			o.sendErr = err
		} else {
			o.actual = actual
		}
	}
	return nil
}

// Requested returns the last frame sent.
func (o *Output) Requested() PressureCommand {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.requested
}

// Status describes the health of the link to the muscle controller.
func (o *Output) Status() ride.Status {
	o.lock.Lock()
	defer o.lock.Unlock()

	switch {
	case o.driver == nil:
		return ride.Error("Test mode, no output to muscle controller")
	case o.sendErr != nil:
		return ride.Error("Controller network error (check ethernet cable and controller power)")
	case !o.readBack:
		return ride.Warning("controller responses not being used")
	}

	var zero []string
	for i, p := range o.actual {
		if p == 0 {
			zero = append(zero, strconv.Itoa(i))
		}
	}
	if len(zero) == len(o.actual) {
		return ride.Error("Pressure Zero on all muscles")
	}
	if len(zero) > 0 {
		return ride.Error("Pressure Zero on muscles: " + strings.Join(zero, ","))
	}

	for i, p := range o.actual {
		req := o.requested.Pressures[i]
		switch {
		case p < req*0.9:
			return ride.Warning("Pressure is Low")
		case p > req*1.1:
			return ride.Warning("Pressure is High")
		}
	}
	return ride.OK("Pressure is Good")
}

// Fields returns the per-muscle observability values for logging.
func (o *Output) Fields() logrus.Fields {
	o.lock.Lock()
	defer o.lock.Unlock()
	return logrus.Fields{
		"mbar":     o.requested.Millibar(),
		"velocity": o.Velocity,
		"force":    o.Force,
	}
}
