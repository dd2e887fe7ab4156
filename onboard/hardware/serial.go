package hardware

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/michaelmargolis/6DoF-Coaster/calcs"
)

const (
	SerialBaudRate = 57600
	// serialTravel is the stroke of the test platform actuators in mm.
	serialTravel = 100
)

// SerialDriver drives the desktop test platform over a serial line. Each frame is
// written as a lengths line (mm above minimum length, clipped to the test platform
// stroke) followed by a pressures line in mbar with the piston flag.
type SerialDriver struct {
	port      io.ReadWriteCloser
	lock      sync.Mutex
	minLength float64
	prevMsg   string
	closed    bool
}

// OpenSerial opens address at SerialBaudRate.
func OpenSerial(address string, minLength float64) (*SerialDriver, error) {
	port, err := serial.Open(&serial.Config{
		Address:  address,
		BaudRate: SerialBaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial output %s: %w", address, err)
	}
	log.WithField("port", address).Info("serial output opened")
	return NewSerialDriver(port, minLength), nil
}

func NewSerialDriver(port io.ReadWriteCloser, minLength float64) *SerialDriver {
	return &SerialDriver{port: port, minLength: minLength}
}

func joinInts(vals []int) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

func (d *SerialDriver) Send(cmd PressureCommand) error {
	lengths := make([]int, len(cmd.Lengths))
	for i, l := range cmd.Lengths {
		lengths[i] = int(calcs.Clamp(l-d.minLength, 0, serialTravel))
	}
	mbar := cmd.Millibar()
	msg := "lengths," + joinInts(lengths) + "\n" + "pressures," + joinInts(mbar[:]) + "\n"

	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	if msg != d.prevMsg {
		log.WithField("msg", strings.TrimSpace(msg)).Debug("serial output")
		d.prevMsg = msg
	}
	_, err := io.WriteString(d.port, msg)
	return err
}

func (d *SerialDriver) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.port.Close()
}
