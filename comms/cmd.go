package comms

import (
	"strings"

	"github.com/michaelmargolis/6DoF-Coaster/ride"
)

// Cmd is a command as sent by remote clients. Cmd holds the symbolic name, with an
// inline argument ("intensity=7") or the argument in Value. For loadPark Name is the
// park path and Value the seat.
type Cmd struct {
	Cmd   string  `json:"cmd"`
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// Command converts c into a ride command.
func (c Cmd) Command() (ride.Command, error) {
	name := strings.TrimSpace(c.Cmd)
	if strings.Contains(name, "=") {
		return ride.ParseCommand(name)
	}
	switch name {
	case ride.CmdIntensity.String():
		return ride.Intensity(int(c.Value))
	case ride.CmdLoadPark.String():
		return ride.LoadPark(c.Name, int(c.Value), false)
	}
	return ride.ParseCommand(name)
}
