package ride

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CommandKind is the closed set of commands understood by the control loop.
type CommandKind int

const (
	CmdEnable CommandKind = iota
	CmdDisable
	CmdIdle
	CmdReady
	CmdSwellForStairs
	CmdParkPlatform
	CmdUnparkPlatform
	CmdIntensity
	CmdActivate
	CmdDeactivate
	CmdDispatch
	CmdPause
	CmdResetVR
	CmdEmergencyStop
	CmdLoadPark
	CmdQuit
)

const (
	MinIntensity = 0
	MaxIntensity = 10
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrIntensityRange = fmt.Errorf("intensity must be between %d and %d", MinIntensity, MaxIntensity)
	ErrMissingPark    = errors.New("loadPark requires a park path")
)

var commandNames = map[CommandKind]string{
	CmdEnable:         "enable",
	CmdDisable:        "disable",
	CmdIdle:           "idle",
	CmdReady:          "ready",
	CmdSwellForStairs: "swellForStairs",
	CmdParkPlatform:   "parkPlatform",
	CmdUnparkPlatform: "unparkPlatform",
	CmdIntensity:      "intensity",
	CmdActivate:       "activate",
	CmdDeactivate:     "deactivate",
	CmdDispatch:       "dispatch",
	CmdPause:          "pause",
	CmdResetVR:        "reset",
	CmdEmergencyStop:  "emergencyStop",
	CmdLoadPark:       "loadPark",
	CmdQuit:           "quit",
}

func (k CommandKind) String() string {
	if n, ok := commandNames[k]; ok {
		return n
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is a tagged command. Value carries the intensity level for CmdIntensity
// and the seat for CmdLoadPark, Path and Paused are only used by CmdLoadPark.
type Command struct {
	Kind   CommandKind
	Value  int
	Path   string
	Paused bool
}

func (c Command) String() string {
	switch c.Kind {
	case CmdIntensity:
		return fmt.Sprintf("intensity=%d", c.Value)
	case CmdLoadPark:
		return fmt.Sprintf("loadPark=%s,%d", c.Path, c.Value)
	}
	return c.Kind.String()
}

// Intensity returns a validated intensity command.
func Intensity(level int) (Command, error) {
	if level < MinIntensity || level > MaxIntensity {
		return Command{}, ErrIntensityRange
	}
	return Command{Kind: CmdIntensity, Value: level}, nil
}

// LoadPark returns a command that loads the park at path and selects seat.
func LoadPark(path string, seat int, paused bool) (Command, error) {
	if strings.TrimSpace(path) == "" {
		return Command{}, ErrMissingPark
	}
	return Command{Kind: CmdLoadPark, Path: path, Value: seat, Paused: paused}, nil
}

// ParseCommand converts a symbolic command such as "idle" or "intensity=7" into a Command.
// "exit" is accepted as an alias of "quit". A park is given as "loadPark=<path>[,<seat>]".
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	name, arg, hasArg := strings.Cut(s, "=")

	switch name {
	case "intensity":
		if !hasArg {
			return Command{}, fmt.Errorf("%w: %q", ErrIntensityRange, s)
		}
		level, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return Command{}, fmt.Errorf("invalid intensity %q: %w", arg, err)
		}
		return Intensity(level)

	case "loadPark":
		seat := 0
		path := arg
		if i := strings.LastIndex(arg, ","); i >= 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(arg[i+1:])); err == nil {
				seat = n
				path = arg[:i]
			}
		}
		return LoadPark(strings.TrimSpace(path), seat, false)

	case "exit":
		return Command{Kind: CmdQuit}, nil
	}

	if hasArg {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	for k, n := range commandNames {
		if n == name && k != CmdIntensity && k != CmdLoadPark {
			return Command{Kind: k}, nil
		}
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}
