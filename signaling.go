package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/michaelmargolis/6DoF-Coaster/comms"
)

// upgrader serves the read-only status socket to any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var controlUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     controlOrigin,
}

// controlOrigin accepts clients without an Origin header, the serving host itself and
// the hosts listed in ALLOWED_ORIGINS.
func controlOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range ENV.ORIGINS {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	log.WithField("origin", origin).Warn("control socket origin refused")
	return false
}

type controlReply struct {
	Cmd   string `json:"cmd"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// StatusSocketHandler pushes every published snapshot to the client.
func StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("upgrade")
		return
	}

	// reads are only needed to see the close frame
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ENV.Conductor.AddClient(conn, done)
}

// ControlSocketHandler reads JSON commands and answers each one.
func ControlSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := controlUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("upgrade")
		return
	}
	defer conn.Close()

	for {
		var cmd comms.Cmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("control socket read")
			}
			return
		}

		reply := controlReply{Cmd: cmd.Cmd, OK: true}
		if err := ENV.Conductor.ProcessCommand(cmd); err != nil {
			reply.OK, reply.Error = false, err.Error()
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.WithError(err).Debug("control socket write")
			return
		}
	}
}
