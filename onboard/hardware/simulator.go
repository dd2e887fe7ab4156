package hardware

import (
	"sync"
)

// SimulatedDriver stands in for the muscle controller. It records every frame and
// reports the requested pressures back as measured.
type SimulatedDriver struct {
	lock    sync.Mutex
	txCount int
	last    PressureCommand
	history []PressureCommand
	Keep    int // frames of history retained, 0 keeps none
	Fail    error
}

func NewSimulatedDriver() *SimulatedDriver {
	return &SimulatedDriver{Keep: 256}
}

func (d *SimulatedDriver) Send(cmd PressureCommand) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.txCount++
	if d.Fail != nil {
		return d.Fail
	}
	d.last = cmd
	if d.Keep > 0 {
		d.history = append(d.history, cmd)
		if len(d.history) > d.Keep {
			d.history = d.history[len(d.history)-d.Keep:]
		}
	}
	return nil
}

func (d *SimulatedDriver) GetPressure() ([6]float64, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.last.Pressures, nil
}

// Last returns the most recent frame and the number of frames sent.
func (d *SimulatedDriver) Last() (PressureCommand, int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.last, d.txCount
}

// History returns a copy of the retained frames, oldest first.
func (d *SimulatedDriver) History() []PressureCommand {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]PressureCommand(nil), d.history...)
}
