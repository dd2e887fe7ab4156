package ride

// Context carries the ride and actuator state of one session.
// It is owned by the control loop and handed to each component by pointer,
// all access happens on the control loop goroutine.
type Context struct {
	Activated bool
	State     State
	Pose      Pose    // last decoded, normalized pose
	Request   Pose    // last shaped request in mm and radians
	Lengths   Lengths // last solved actuator lengths, written only by a move
	Commanded Lengths // lengths last sent to the actuators, slow moves included
	Enabled   bool
	Parked    bool
	Intensity int
	Speed     float64
	Session   string
}

// NewContext returns a deactivated context with the actuators at rest.
func NewContext(rest Lengths) *Context {
	return &Context{
		State:     Deactivated,
		Lengths:   rest,
		Commanded: rest,
		Intensity: 10,
	}
}
