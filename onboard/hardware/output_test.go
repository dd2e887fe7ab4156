package hardware

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/michaelmargolis/6DoF-Coaster/ride"
	. "github.com/smartystreets/goconvey/convey"
)

var chairLimits = Limits{
	MinLength:      800,
	MaxLength:      1000,
	FixedLength:    200,
	DisabledLength: 950,
	ProppingLength: 920,
}

// testDriver records frames without reading pressures back.
type testDriver struct {
	txerr   bool
	txCount int
	last    PressureCommand
}

func (d *testDriver) Send(cmd PressureCommand) error {
	d.txCount++
	d.last = cmd
	if d.txerr {
		return errors.New("this is a simulated tx error")
	}
	return nil
}

// runMove steps a task at SlowMoveInterval until it reports done.
func runMove(task interface {
	Step(context.Context, time.Time) (bool, error)
}) (steps int, err error) {
	now := time.Now()
	for steps < 10000 {
		done, err := task.Step(context.Background(), now)
		steps++
		if done {
			return steps, err
		}
		now = now.Add(SlowMoveInterval)
	}
	return steps, errors.New("task never finished")
}

func TestPressure(t *testing.T) {
	Convey("Pressure conversion", t, func() {
		Convey("a fully extended muscle gets the minimum pressure", func() {
			So(PressureFor(chairLimits, 800), ShouldEqual, MinPressure)
		})

		Convey("a fully contracted muscle is clamped to the maximum", func() {
			So(PressureFor(chairLimits, 0), ShouldEqual, MaxPressure)
		})

		Convey("a quarter contraction follows the curve", func() {
			So(PressureFor(chairLimits, 600), ShouldAlmostEqual, 35*.0625+15*.25+.03, 1e-9)
		})

		Convey("pressure rises as the muscle shortens", func() {
			prev := 0.0
			for l := 800.0; l >= 0; l -= 10 {
				p := PressureFor(chairLimits, l)
				So(p, ShouldBeGreaterThanOrEqualTo, prev)
				So(p, ShouldBeBetweenOrEqual, MinPressure, MaxPressure)
				prev = p
			}
		})

		Convey("millibar words carry the piston flag last", func() {
			cmd := PressureCommand{Pressures: [6]float64{0.05, 1, 2.5, 6, 0.1234, 3}, Piston: true}
			So(cmd.Millibar(), ShouldResemble, [7]int{50, 1000, 2500, 6000, 123, 3000, 1})
			cmd.Piston = false
			So(cmd.Millibar()[6], ShouldEqual, 0)
		})
	})
}

func TestOutput(t *testing.T) {
	Convey("Given an output on a recording driver", t, func() {
		drv := &testDriver{}
		o := NewOutput(drv, chairLimits, 90)
		client := ride.Uniform(850)

		Convey("moves are ignored until enabled", func() {
			So(o.MovePlatform(client), ShouldBeNil)
			So(drv.txCount, ShouldEqual, 0)

			So(o.SetEnable(true, client), ShouldBeNil)
			So(o.MovePlatform(client), ShouldBeNil)
			So(drv.txCount, ShouldEqual, 1)
			So(drv.last.Lengths[0], ShouldEqual, 850)
			So(drv.last.Pressures[0], ShouldAlmostEqual, PressureFor(chairLimits, 650), 1e-9)
		})

		Convey("enable only acts on a change", func() {
			So(o.SetEnable(false, client), ShouldBeNil)
			So(o.SetEnable(true, client), ShouldBeNil)
			So(o.SetEnable(true, client), ShouldBeNil)
		})

		Convey("disabling lowers to the disabled position over one second", func() {
			o.SetEnable(true, client)
			o.Park(false)
			So(o.Parked(), ShouldBeFalse)

			move := o.SetEnable(false, client)
			So(move, ShouldNotBeNil)
			So(move.Steps, ShouldEqual, 20)
			So(o.Parked(), ShouldBeTrue)

			steps, err := runMove(move)
			So(err, ShouldBeNil)
			So(steps, ShouldEqual, 20)
			So(drv.last.Lengths, ShouldResemble, [6]float64(ride.Uniform(950)))
			So(drv.last.Piston, ShouldBeFalse)
		})

		Convey("park resends the last pressures with the new piston flag", func() {
			o.SetEnable(true, client)
			o.MovePlatform(client)
			sent := drv.last

			So(o.Park(false), ShouldBeNil)
			So(drv.txCount, ShouldEqual, 2)
			So(drv.last.Pressures, ShouldResemble, sent.Pressures)
			So(drv.last.Piston, ShouldBeTrue)

			So(o.Park(true), ShouldBeNil)
			So(drv.last.Piston, ShouldBeFalse)
		})

		Convey("idle and ready moves run between client and disabled positions", func() {
			idle := o.MoveToIdle(client)
			So(idle.Start, ShouldResemble, client)
			So(idle.End, ShouldResemble, ride.Uniform(950))

			ready := o.MoveToReady(client)
			So(ready.Start, ShouldResemble, ride.Uniform(950))
			So(ready.End, ShouldResemble, client)
		})

		Convey("swell rises to the propping length, holds and returns", func() {
			swell := o.SwellForAccess(3 * time.Second)
			var peak float64 = 10000
			now := time.Now()
			for i := 0; i < 200; i++ {
				done, err := swell.Step(context.Background(), now)
				So(err, ShouldBeNil)
				if drv.last.Lengths[0] < peak {
					peak = drv.last.Lengths[0]
				}
				if done {
					break
				}
				now = now.Add(SlowMoveInterval)
			}
			So(peak, ShouldAlmostEqual, 920, 1e-9)
			So(drv.last.Lengths[0], ShouldAlmostEqual, 950, 1e-9)
			So(drv.txCount, ShouldEqual, 40)
		})

		Convey("payload changes the weight used for force estimates", func() {
			o.SetPayload(45)
			So(o.Payload(), ShouldEqual, 45)
		})

		Convey("status reports unused controller responses", func() {
			So(o.Status().Level, ShouldEqual, ride.LevelWarning)
		})

		Convey("a send failure is a network error", func() {
			drv.txerr = true
			o.SetEnable(true, client)
			So(o.MovePlatform(client), ShouldNotBeNil)
			So(o.Status().Text, ShouldStartWith, "Controller network error")
			So(o.Status().Level, ShouldEqual, ride.LevelError)
		})
	})

	Convey("Given an output on the simulated driver", t, func() {
		sim := NewSimulatedDriver()
		o := NewOutput(sim, chairLimits, 90)
		o.SetEnable(true, ride.Lengths{})

		Convey("echoed pressures are good", func() {
			o.MovePlatform(ride.Uniform(900))
			So(o.Status(), ShouldResemble, ride.OK("Pressure is Good"))
			last, n := sim.Last()
			So(n, ShouldEqual, 1)
			So(last.Lengths[5], ShouldEqual, 900)
		})

		Convey("zero pressures are reported per muscle", func() {
			o.actual = [6]float64{1, 0, 1, 1, 0, 1}
			So(o.Status(), ShouldResemble, ride.Error("Pressure Zero on muscles: 1,4"))
			o.actual = [6]float64{}
			So(o.Status(), ShouldResemble, ride.Error("Pressure Zero on all muscles"))
		})

		Convey("low readings are a warning", func() {
			o.MovePlatform(ride.Uniform(900))
			o.actual[2] /= 2
			So(o.Status(), ShouldResemble, ride.Warning("Pressure is Low"))
		})
	})
}

func TestSlowMove(t *testing.T) {
	Convey("Given a slow move", t, func() {
		var sent []ride.Lengths
		send := func(l ride.Lengths) error {
			sent = append(sent, l)
			return nil
		}
		start, end := ride.Uniform(900), ride.Uniform(1000)

		Convey("a move shorter than one interval jumps to the end", func() {
			m := newSlowMove(send, start, end, 20*time.Millisecond)
			done, err := m.Step(context.Background(), time.Now())
			So(done, ShouldBeTrue)
			So(err, ShouldBeNil)
			So(sent, ShouldResemble, []ride.Lengths{end})
		})

		Convey("steps are spaced by the interval and interpolate linearly", func() {
			m := newSlowMove(send, start, end, 200*time.Millisecond)
			So(m.Steps, ShouldEqual, 4)
			now := time.Now()

			done, _ := m.Step(context.Background(), now)
			So(done, ShouldBeFalse)
			So(sent[0][0], ShouldAlmostEqual, 925, 1e-9)

			done, _ = m.Step(context.Background(), now.Add(10*time.Millisecond))
			So(len(sent), ShouldEqual, 1)

			for i := 1; i < 4; i++ {
				done, _ = m.Step(context.Background(), now.Add(time.Duration(i)*SlowMoveInterval))
			}
			So(done, ShouldBeTrue)
			So(sent[3], ShouldResemble, end)
		})

		Convey("a cancelled context stops the move", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			m := newSlowMove(send, start, end, time.Second)
			done, err := m.Step(ctx, time.Now())
			So(done, ShouldBeTrue)
			So(err, ShouldEqual, context.Canceled)
			So(sent, ShouldBeEmpty)
		})

		Convey("Run drives the move to completion", func() {
			m := newSlowMove(send, start, end, 100*time.Millisecond)
			So(m.Run(context.Background()), ShouldBeNil)
			So(sent[len(sent)-1], ShouldResemble, end)
		})
	})
}

type bufferPort struct {
	bytes.Buffer
	closed bool
}

func (p *bufferPort) Close() error {
	p.closed = true
	return nil
}

func TestSerialDriver(t *testing.T) {
	Convey("Given a serial driver on a buffer", t, func() {
		port := &bufferPort{}
		d := NewSerialDriver(port, 800)

		Convey("frames are written as lengths and pressures lines", func() {
			err := d.Send(PressureCommand{
				Lengths:   [6]float64{790, 800, 850, 900, 950, 1000},
				Pressures: [6]float64{1, 1, 1, 1, 1, 1},
				Piston:    true,
			})
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(port.String()), "\n")
			So(lines, ShouldResemble, []string{
				"lengths,0,0,50,100,100,100",
				"pressures,1000,1000,1000,1000,1000,1000,1",
			})
		})

		Convey("a closed driver refuses frames", func() {
			So(d.Close(), ShouldBeNil)
			So(port.closed, ShouldBeTrue)
			So(d.Send(PressureCommand{}), ShouldEqual, ErrDriverClosed)
		})
	})
}

func BenchmarkPressureFor(b *testing.B) {
	for i := 0; i < b.N; i++ {
		PressureFor(chairLimits, float64(i%800))
	}
}
