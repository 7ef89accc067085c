package websocket

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"goalconnect/core"
	"goalconnect/realtime"

	gorillaws "github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Option configures Handler.
type Option func(*settings)

type settings struct {
	allUsers bool
	origins  []string
}

// WithAllUsers lets a connection without a "user" parameter receive every
// user's events. Only mount it behind authentication.
func WithAllUsers() Option {
	return func(s *settings) { s.allUsers = true }
}

// WithAllowedOrigins accepts browser connections from these origins in
// addition to the server's own host. "*" accepts any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *settings) {
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				s.origins = append(s.origins, o)
			}
		}
	}
}

// checkOrigin allows non-browser clients (no Origin header), same-host pages
// and the configured origins.
func (s settings) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Handler returns an http.Handler that upgrades to WebSocket and streams the
// events of the user named by the "user" query parameter.
func Handler(hub *realtime.Hub, opts ...Option) http.Handler {
	var cfg settings
	for _, o := range opts {
		o(&cfg)
	}
	upgrader := gorillaws.Upgrader{CheckOrigin: cfg.checkOrigin}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user core.UserID
		switch raw := r.URL.Query().Get("user"); {
		case raw != "":
			normalized, err := core.NormalizeUserID(core.UserID(raw))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			user = normalized
		case !cfg.allUsers:
			http.Error(w, "user query parameter is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id, ch := hub.SubscribeUser(user, 256)
		defer hub.Unsubscribe(id)

		// drain client frames so close and pong control messages are handled
		done := make(chan struct{})
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	})
}
