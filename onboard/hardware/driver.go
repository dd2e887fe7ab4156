package hardware

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "hardware")

var (
	ErrDriverClosed = errors.New("actuator driver is closed")
	ErrNoDriver     = errors.New("no actuator driver configured")
)

// Driver delivers pressure frames to the muscle controller.
type Driver interface {
	Send(cmd PressureCommand) error
}

// PressureReader is implemented by drivers that can read back measured pressures (bar).
type PressureReader interface {
	GetPressure() ([6]float64, error)
}
