package ride

import "fmt"

// Level is the severity attached to a status line.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	default:
		return "error"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	for _, v := range []Level{LevelOK, LevelWarning, LevelError} {
		if v.String() == string(b) {
			*l = v
			return nil
		}
	}
	return fmt.Errorf("unknown status level %q", b)
}

// Status is a human readable line with a severity.
type Status struct {
	Text  string `json:"text"`
	Level Level  `json:"level"`
}

func OK(text string) Status      { return Status{text, LevelOK} }
func Warning(text string) Status { return Status{text, LevelWarning} }
func Error(text string) Status   { return Status{text, LevelError} }
