package handlers

import (
	"context"
	"net/http"
	"slices"
	"time"

	"fermenter_controller/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait     = 10 * time.Second
	wsPongWait      = 60 * time.Second
	wsPingPeriod    = (wsPongWait * 9) / 10
	wsMaxReadBytes  = 512
	wsDefaultPoll   = time.Second
	wsMinPoll       = 100 * time.Millisecond
	wsMaxPoll       = 10 * time.Second
	wsFrameStatus   = "status"
	wsFrameSafety   = "safety"
	wsFrameActuator = "actuator"
)

type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// channelFrame is the per-actuator part of a status frame.
type channelFrame struct {
	Actuator      models.Actuator `json:"actuator"`
	DesiredOn     bool            `json:"desired_on"`
	ConfirmedOn   bool            `json:"confirmed_on"`
	PendingAction models.Action   `json:"pending_action,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

type statusFrame struct {
	ControlSensorID string         `json:"control_sensor_id,omitempty"`
	TemperatureF    *float64       `json:"temperature_f,omitempty"`
	FreshnessSec    float64        `json:"freshness_sec"`
	SafetyShutdown  bool           `json:"safety_shutdown"`
	Channels        []channelFrame `json:"channels"`
}

type safetyFrame struct {
	Engaged         bool   `json:"engaged"`
	ControlSensorID string `json:"control_sensor_id,omitempty"`
}

func newStatusFrame(st models.ControlStatus) statusFrame {
	f := statusFrame{
		ControlSensorID: st.ControlSensorID,
		TemperatureF:    st.TemperatureF,
		FreshnessSec:    st.FreshnessSec,
		SafetyShutdown:  st.SafetyShutdown,
		Channels:        make([]channelFrame, 0, len(st.Actuators)),
	}
	for _, a := range st.Actuators {
		ch := channelFrame{
			Actuator:    a.Actuator,
			DesiredOn:   a.DesiredOn,
			ConfirmedOn: a.ConfirmedOn,
			LastError:   a.LastError,
		}
		if a.Pending != nil {
			ch.PendingAction = a.Pending.Action
		}
		f.Channels = append(f.Channels, ch)
	}
	return f
}

// statusStream pushes one full status frame on connect, then only the
// changes: a safety frame when the shutdown flips and an actuator frame when
// a channel's switch state, pending command or error changes.
type statusStream struct {
	h    *Handler
	conn *websocket.Conn
	last statusFrame
}

func (s *statusStream) write(typ string, data any) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(wsFrame{Type: typ, Data: data})
}

func (s *statusStream) snapshot(ctx context.Context) (statusFrame, error) {
	st, err := s.h.services.Monitoring.GetStatus(ctx)
	if err != nil {
		return statusFrame{}, err
	}
	return newStatusFrame(st), nil
}

func (s *statusStream) start(ctx context.Context) error {
	f, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	s.last = f
	return s.write(wsFrameStatus, f)
}

func (s *statusStream) poll(ctx context.Context) error {
	f, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	if f.SafetyShutdown != s.last.SafetyShutdown {
		if err := s.write(wsFrameSafety, safetyFrame{Engaged: f.SafetyShutdown, ControlSensorID: f.ControlSensorID}); err != nil {
			return err
		}
	}
	for _, ch := range f.Channels {
		i := slices.IndexFunc(s.last.Channels, func(p channelFrame) bool { return p.Actuator == ch.Actuator })
		if i >= 0 && s.last.Channels[i] == ch {
			continue
		}
		if err := s.write(wsFrameActuator, ch); err != nil {
			return err
		}
	}
	s.last = f
	return nil
}

// checkOrigin allows requests without an Origin header and those listed in
// allowedOrigins; "*" allows any origin. With no list only same-host origins
// are accepted.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
	return slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin)
}

// @Summary      Controller status stream
// @Description  WebSocket. Sends {"type":"status"} on connect, then "safety" and "actuator" frames when they change. ?interval=500ms sets the poll period (100ms..10s).
// @Tags         control
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	poll := parsePollInterval(c.Query("interval"))

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warnw("ws_upgrade_failed", "origin", c.GetHeader("Origin"), "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(wsMaxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// the stream is server-push; reads only notice pongs and disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	stream := &statusStream{h: h, conn: conn}
	if err := stream.start(ctx); err != nil {
		if h.log != nil {
			h.log.Warnw("ws_status_failed", "err", err)
		}
		return
	}

	pollTicker := time.NewTicker(poll)
	pingTicker := time.NewTicker(wsPingPeriod)
	defer pollTicker.Stop()
	defer pingTicker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-pollTicker.C:
			if err := stream.poll(ctx); err != nil {
				if h.log != nil {
					h.log.Infow("ws_stream_closed", "err", err)
				}
				return
			}
		}
	}
}

// parsePollInterval accepts a Go duration within [wsMinPoll, wsMaxPoll].
func parsePollInterval(s string) time.Duration {
	if s == "" {
		return wsDefaultPoll
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < wsMinPoll || d > wsMaxPoll {
		return wsDefaultPoll
	}
	return d
}
