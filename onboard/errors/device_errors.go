package errors

import "fmt"

// GeometryError reports attachment point lists that cannot describe a six leg platform.
type GeometryError struct {
	Base     int
	Platform int
}

func (err GeometryError) Error() string {
	if err.Base != err.Platform {
		return fmt.Sprintf("platform geometry mismatch; %d base points and %d platform points", err.Base, err.Platform)
	}
	return fmt.Sprintf("platform geometry needs 3 or 6 attachment points, got %d", err.Base)
}

// ConfigError reports an unusable chair configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (err ConfigError) Error() string {
	if len(err.Reason) == 0 {
		err.Reason = "invalid value"
	}
	return fmt.Sprintf("chair config %s: %s", err.Field, err.Reason)
}
