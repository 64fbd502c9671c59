package server

import (
	"net/http"
	"time"

	"smartchef/internal/app"
	"smartchef/internal/mealplan"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type socketMessage struct {
	Type   app.EventType    `json:"type"`
	Plan   *mealplan.Plan   `json:"plan,omitempty"`
	Mode   mealplan.Mode    `json:"mode"`
	Notice *mealplan.Notice `json:"notice,omitempty"`
}

// handlePlanSocket pushes every plan change and notice of the session.
func (s *Server) handlePlanSocket(w http.ResponseWriter, r *http.Request) {
	session := s.app.Session(sessionKey(r.Context()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only serve control frames; a read error means the peer left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.WithError(err).Debug("websocket closed")
				}
				return
			}
		}
	}()

	events := session.Watch(r.Context())
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"), time.Now().Add(writeWait))
				return
			}
			msg := socketMessage{Type: ev.Type, Mode: session.Mode()}
			switch ev.Type {
			case app.EventPlan:
				plan := ev.Plan
				if plan == nil {
					plan = mealplan.Plan{}
				}
				msg.Plan = &plan
			case app.EventNotice:
				n := ev.Notice
				msg.Notice = &n
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
