// Package store persists operator settings between runs.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
)

const settingsID = 1

// Settings are the operator choices restored at startup.
type Settings struct {
	ID         int `storm:"id"`
	Intensity  int
	Seat       int
	ParkPath   string
	Gain       float64
	LiftHeight float64
	Updated    time.Time
}

func Defaults() Settings {
	return Settings{
		ID:         settingsID,
		Intensity:  ride.MaxIntensity,
		Gain:       0.6,
		LiftHeight: 32,
	}
}

// Open opens the settings database at path.
func Open(path string) (*storm.DB, error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening settings db: %w", err)
	}
	if err := db.Init(&Settings{}); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Load returns the saved settings, or the defaults when none have been saved.
func Load(db *storm.DB) (Settings, error) {
	var s Settings
	err := db.One("ID", settingsID, &s)
	if errors.Is(err, storm.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}

func Save(db *storm.DB, s *Settings) error {
	s.ID = settingsID
	s.Updated = time.Now().UTC()
	return db.Save(s)
}

// Apply records the persistent part of cmd and reports whether anything changed.
func (s *Settings) Apply(cmd ride.Command) bool {
	switch cmd.Kind {
	case ride.CmdIntensity:
		if s.Intensity == cmd.Value {
			return false
		}
		s.Intensity = cmd.Value
	case ride.CmdLoadPark:
		if s.ParkPath == cmd.Path && s.Seat == cmd.Value {
			return false
		}
		s.ParkPath, s.Seat = cmd.Path, cmd.Value
	default:
		return false
	}
	return true
}

// Tune overrides the decoder gain and starting lift height. Values of zero or less
// leave the stored value alone. It reports whether anything changed.
func (s *Settings) Tune(gain, liftHeight float64) bool {
	changed := false
	if gain > 0 && gain != s.Gain {
		s.Gain, changed = gain, true
	}
	if liftHeight > 0 && liftHeight != s.LiftHeight {
		s.LiftHeight, changed = liftHeight, true
	}
	return changed
}
