package hardware

import (
	"context"
	"time"

	"github.com/michaelmargolis/6DoF-Coaster/calcs"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
)

// SlowMoveInterval is the time between interpolation steps.
const SlowMoveInterval = 50 * time.Millisecond

// SlowMove interpolates actuator lengths from Start to End in fixed steps, sending each
// step regardless of the enabled flag. It is driven one step at a time by Step or
// blocking by Run.
type SlowMove struct {
	Start, End ride.Lengths
	Steps      int

	send    func(ride.Lengths) error
	step    int
	next    time.Time
	current ride.Lengths
}

func newSlowMove(send func(ride.Lengths) error, start, end ride.Lengths, d time.Duration) *SlowMove {
	return &SlowMove{
		Start:   start,
		End:     end,
		Steps:   int(d / SlowMoveInterval),
		send:    send,
		current: start,
	}
}

func (m *SlowMove) String() string { return "slow move" }

// Current is the last length sent.
func (m *SlowMove) Current() ride.Lengths {
	return m.current
}

// Step sends the next interpolated lengths when due and reports completion.
func (m *SlowMove) Step(ctx context.Context, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if m.Steps < 1 {
		m.current = m.End
		return true, m.send(m.End)
	}
	if m.next.IsZero() {
		m.next = now
	}
	if now.Before(m.next) {
		return false, nil
	}

	m.step++
	if m.step >= m.Steps {
		m.current = m.End
	} else {
		f := float64(m.step) / float64(m.Steps)
		for i := range m.current {
			m.current[i] = calcs.Lerp(m.Start[i], m.End[i], f)
		}
	}
	m.next = m.next.Add(SlowMoveInterval)
	err := m.send(m.current)
	return m.step >= m.Steps, err
}

// Run steps the move on its own ticker until it completes or ctx ends.
func (m *SlowMove) Run(ctx context.Context) error {
	t := time.NewTicker(SlowMoveInterval)
	defer t.Stop()

	now := time.Now()
	for {
		done, err := m.Step(ctx, now)
		if done {
			return err
		}
		if err != nil {
			log.WithError(err).Warn("slow move step failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now = <-t.C:
		}
	}
}

// Swell raises the platform to the propping length, holds, and lowers it again.
type Swell struct {
	up, down *SlowMove
	hold     time.Duration
	until    time.Time
}

func (s *Swell) String() string { return "swell for access" }

func (s *Swell) Step(ctx context.Context, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if s.up != nil {
		if done, err := s.up.Step(ctx, now); !done {
			return false, err
		}
		log.Debug("raised for access")
		s.up = nil
		s.until = now.Add(s.hold)
	}
	if now.Before(s.until) {
		return false, nil
	}
	done, err := s.down.Step(ctx, now)
	if done {
		log.Info("finished swelling for access")
	}
	return done, err
}
