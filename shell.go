package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/michaelmargolis/6DoF-Coaster/comms"
	"github.com/michaelmargolis/6DoF-Coaster/onboard"
	"github.com/michaelmargolis/6DoF-Coaster/onboard/hardware"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
)

// newShell builds the operator shell. Ride commands go through the conductor like
// any remote client.
func newShell(cd *comms.Conductor, chair *onboard.Chair) *ishell.Shell {
	shell := ishell.New()
	shell.Println("6DoF coaster operator shell")
	shell.ShowPrompt(true)

	submit := func(c *ishell.Context, cmd comms.Cmd) {
		if err := cd.ProcessCommand(cmd); err != nil {
			c.Err(err)
			return
		}
		c.Println("ok")
	}

	for _, name := range []string{"activate", "deactivate", "dispatch", "pause", "reset"} {
		name := name
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: name + " the ride",
			Func: func(c *ishell.Context) { submit(c, comms.Cmd{Cmd: name}) },
		})
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "cmd",
		Help: "cmd <symbolic command>, e.g. cmd intensity=7",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("usage: cmd <command>"))
				return
			}
			submit(c, comms.Cmd{Cmd: strings.Join(c.Args, " ")})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "park",
		Help: "park <path> [seat]",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("usage: park <path> [seat]"))
				return
			}
			cmd := comms.Cmd{Cmd: ride.CmdLoadPark.String(), Name: c.Args[0]}
			if len(c.Args) > 1 {
				seat, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(err)
					return
				}
				cmd.Value = float64(seat)
			}
			submit(c, cmd)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show the ride status",
		Func: func(c *ishell.Context) {
			s := cd.Latest()
			c.Printf("ride:       %s (activated %t)\n", s.Ride, s.Activated)
			c.Printf("coaster:    [%s] %s\n", s.Connection.Level, s.Connection.Text)
			c.Printf("chair:      [%s] %s\n", s.Chair.Level, s.Chair.Text)
			c.Printf("intensity:  %s\n", s.Intensity.Text)
			c.Printf("enabled:    %t parked %t\n", s.Enabled, s.Parked)
			c.Printf("lengths:    %.0f\n", s.Lengths)
			if s.Session != "" {
				c.Printf("session:    %s\n", s.Session)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "station",
		Help: "show the station flags",
		Func: func(c *ishell.Context) {
			c.Println(formatStation(cd.Latest()))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "move",
		Help: "move <x> <y> <z> <roll> <pitch> <yaw>, mm and degrees; prints lengths without moving",
		Func: func(c *ishell.Context) {
			lengths, pressures, err := dryRun(chair, c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			for i := range lengths {
				c.Printf("leg %d: %6.1f mm  %4.2f bar\n", i, lengths[i], pressures[i])
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "createoperator",
		Help: "createoperator <email> <password>",
		Func: func(c *ishell.Context) {
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)

			var email, password string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			if _, err := CreateOperator(ENV.DB, email, password, true); err != nil {
				c.Err(err)
				return
			}
			c.Println("Operator created")
		},
	})

	return shell
}

func formatStation(s comms.Snapshot) string {
	names := make([]string, 0, len(s.StationFlags))
	for name := range s.StationFlags {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "station 0x%04x\n", s.Station)
	for _, name := range names {
		fmt.Fprintf(&b, "  %-26s %t\n", name, s.StationFlags[name])
	}
	return b.String()
}

// dryRun solves a pose given in mm and degrees and returns the leg lengths and
// the pressures they would need.
func dryRun(chair *onboard.Chair, args []string) (l ride.Lengths, p [6]float64, err error) {
	if len(args) != 6 {
		return l, p, fmt.Errorf("need 6 values, got %d", len(args))
	}
	var pose ride.Pose
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return l, p, fmt.Errorf("value %d: %w", i, err)
		}
		if i >= 3 {
			v = mgl64.DegToRad(v)
		}
		pose[i] = v
	}

	l = chair.Solver.Solve(pose)
	limits := chair.Output.Limits
	for i := range l {
		p[i] = hardware.PressureFor(limits, l[i]-limits.FixedLength)
	}
	return l, p, nil
}
