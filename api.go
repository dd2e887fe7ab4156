package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/michaelmargolis/6DoF-Coaster/comms"
	"github.com/michaelmargolis/6DoF-Coaster/control"
)

// CmdPayload is the body of POST /api/cmd.
type CmdPayload struct {
	comms.Cmd
}

func (c *CmdPayload) Bind(r *http.Request) error {
	if c.Cmd.Cmd == "" {
		return errors.New("cmd is required")
	}
	return nil
}

type CmdResponse struct {
	Accepted string `json:"accepted"`
}

type StationResponse struct {
	Station uint32          `json:"station"`
	Flags   map[string]bool `json:"flags"`
}

// StatusHandler returns the latest ride snapshot.
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ENV.Conductor.Latest())
}

// StationHandler returns the station bitfield with a label for each bit.
func StationHandler(w http.ResponseWriter, r *http.Request) {
	s := ENV.Conductor.Latest()
	render.JSON(w, r, StationResponse{Station: s.Station, Flags: s.StationFlags})
}

// CommandHandler forwards one operator command to the control loop.
func CommandHandler(w http.ResponseWriter, r *http.Request) {
	data := &CmdPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	rc, err := data.Command()
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Conductor.ProcessCommand(data.Cmd); err != nil {
		if errors.Is(err, control.ErrInboxFull) || errors.Is(err, control.ErrStopped) || errors.Is(err, comms.ErrNoController) {
			render.Render(w, r, ErrUnavailable(err))
			return
		}
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, CmdResponse{Accepted: rc.String()})
}
