package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gridcraft.ai/internal/observerproto"
)

// Server owns the spectator HTTP surface: a session listing and the
// watch websocket. Both default to loopback-only; allowRemote opens
// them up.
type Server struct {
	reg         *Registry
	log         *log.Logger
	allowRemote bool

	upgrader websocket.Upgrader
}

func NewServer(reg *Registry, logger *log.Logger, allowRemote bool) *Server {
	return &Server{
		reg:         reg,
		log:         logger,
		allowRemote: allowRemote,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SessionsHandler lists watchable sessions for clients picking one.
func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Sessions:        s.reg.Sessions(),
		})
	}
}

// WSHandler serves one spectator connection. The first message must be
// a SUBSCRIBE; later SUBSCRIBEs switch sessions in place.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"),
				time.Now().Add(time.Second))
			return
		}

		wt := newWatcher()
		if err := s.reg.attach(wt, sub.SessionID); err != nil {
			// No writer is running yet, so a direct write is fine here.
			b, _ := json.Marshal(observerproto.ErrorMsg{
				Type:            observerproto.TypeError,
				ProtocolVersion: observerproto.Version,
				Code:            observerproto.ErrUnknownSession,
				Message:         "no session " + sub.SessionID,
			})
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteMessage(websocket.TextMessage, b)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, observerproto.ErrUnknownSession),
				time.Now().Add(time.Second))
			return
		}

		// Pings keep idle spectators alive; frames alone may be sparse
		// on logical sessions.
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		})

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for b := range wt.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					_ = conn.Close()
					return
				}
			}
			// Channel closed: session over or spectator detached.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
				continue
			}
			if err := s.reg.attach(wt, sub.SessionID); err != nil {
				b, _ := json.Marshal(observerproto.ErrorMsg{
					Type:            observerproto.TypeError,
					ProtocolVersion: observerproto.Version,
					Code:            observerproto.ErrUnknownSession,
					Message:         "no session " + sub.SessionID,
				})
				s.reg.push(wt, b)
			}
		}

		s.reg.detach(wt)
		// Best-effort wait so the writer does not outlive conn.
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
