package onboard

import (
	"fmt"

	"github.com/michaelmargolis/6DoF-Coaster/calcs"
	"github.com/michaelmargolis/6DoF-Coaster/onboard/hardware"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "onboard")

// Payload range mapped from the intensity level, kg.
const (
	lowerPayloadWeight = 20
	upperPayloadWeight = 90
)

// Chair turns normalized poses into actuator lengths and hands them to the output.
type Chair struct {
	Config ChairConfig
	Solver *Solver
	Shaper *Shaper
	Output *hardware.Output

	ctx *ride.Context
}

// NewChair validates cfg and wires the solver, shaper and output around driver.
// The context starts with the actuators at the propping length.
func NewChair(cfg ChairConfig, driver hardware.Driver, ctx *ride.Context) (*Chair, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := cfg.Geometry()
	if err != nil {
		return nil, err
	}

	c := &Chair{
		Config: cfg,
		Solver: NewSolver(g),
		Shaper: NewShaper(cfg.Limits1DOF.Pose()),
		Output: hardware.NewOutput(driver, cfg.ActuatorLimits(), cfg.TotalWeight()),
		ctx:    ctx,
	}
	ctx.Lengths = c.RestLengths()
	ctx.Commanded = ctx.Lengths
	log.WithFields(logrus.Fields{"chair": cfg.Name, "mid": g.MidHeight}).Info("chair configured")
	return c, nil
}

// RestLengths is the propping position used before any pose has been solved.
func (c *Chair) RestLengths() ride.Lengths {
	return ride.Uniform(c.Output.Limits.ProppingLength)
}

// Move shapes a normalized pose, solves the leg lengths and sends them when enabled.
func (c *Chair) Move(pose ride.Pose) error {
	req := c.Shaper.Shape(pose)
	lengths := c.Solver.Solve(req)
	c.ctx.Request = req
	c.ctx.Lengths = lengths

	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		log.WithFields(logrus.Fields{"request": req, "span": Span(lengths)}).Debug("move")
	}
	if !c.Output.Enabled() {
		return nil
	}
	c.ctx.Commanded = lengths
	return c.Output.MovePlatform(lengths)
}

// SetIntensity maps a level of 0 to 10 onto the payload weight and motion gain and
// returns the intensity status line.
func (c *Chair) SetIntensity(level int) ride.Status {
	payload := calcs.Scale(float64(level), [2]float64{ride.MinIntensity, ride.MaxIntensity},
		[2]float64{lowerPayloadWeight, upperPayloadWeight})
	c.Output.SetPayload(payload + c.Config.UnloadedWeight)
	c.Shaper.SetIntensity(level)
	c.ctx.Intensity = level

	return ride.OK(fmt.Sprintf("%d percent Intensity, (Weight %d kg)",
		int(c.Shaper.Intensity()*100+.5), int(payload)))
}
