package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/codedesk/codedesk/internal/auth"
	"github.com/codedesk/codedesk/internal/metrics"
	"github.com/codedesk/codedesk/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now; tighten in production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// terminalWebSocket bridges one WebSocket connection to one interactive
// session. Connecting attaches to the named session or creates it; the
// client then sends input/resize/kill frames and receives output frames.
// Every way out of the handler (kill frame, shell exit, disconnect, write
// failure) converges on the same termination path.
func (s *Server) terminalWebSocket(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if !s.wsAuthorized(c, sessionID) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "missing or invalid credentials",
		})
	}

	sess, created, err := s.sessions.GetOrCreate(types.SessionCreateRequest{SessionID: sessionID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade failure on a session we just spawned leaves an orphan
		// shell nobody can reach; reap it. An attach target stays alive.
		if created {
			s.sessions.Kill(sess.ID)
		}
		return err
	}
	defer ws.Close()

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	// Output pump and read loop write frames concurrently.
	var writeMu sync.Mutex
	writeFrame := func(f types.Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteJSON(f)
	}

	if err := writeFrame(types.Frame{
		Type:      types.FrameSessionCreated,
		SessionID: sess.ID,
		PID:       sess.PID(),
	}); err != nil {
		if created {
			s.sessions.Kill(sess.ID)
		}
		return nil
	}

	out, ok := s.sessions.Output(sess.ID)
	if !ok {
		// Killed between create and attach.
		_ = writeFrame(types.Frame{Type: types.FrameSessionKilled})
		return nil
	}

	stop := make(chan struct{})
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for {
			select {
			case chunk := <-out:
				if writeFrame(types.Frame{Type: types.FrameOutput, Data: string(chunk)}) != nil {
					return
				}
			case <-sess.Done():
				// Flush whatever the shell emitted before exiting, then
				// tell the client the session is gone.
				for {
					select {
					case chunk := <-out:
						if writeFrame(types.Frame{Type: types.FrameOutput, Data: string(chunk)}) != nil {
							return
						}
					default:
						_ = writeFrame(types.Frame{Type: types.FrameSessionKilled})
						return
					}
				}
			case <-stop:
				return
			}
		}
	}()

readLoop:
	for {
		var frame types.Frame
		if err := ws.ReadJSON(&frame); err != nil {
			break
		}

		switch frame.Type {
		case types.FrameInput:
			if err := s.sessions.Write(sess.ID, []byte(frame.Data)); err != nil {
				_ = writeFrame(types.Frame{Type: types.FrameError, Message: err.Error()})
				break readLoop
			}
		case types.FrameResize:
			if err := s.sessions.Resize(sess.ID, frame.Cols, frame.Rows); err != nil {
				_ = writeFrame(types.Frame{Type: types.FrameError, Message: err.Error()})
			}
		case types.FrameKill:
			s.sessions.Kill(sess.ID)
			// The pump sees Done close and emits session_killed; wait for
			// that flush rather than racing it with the connection close.
			select {
			case <-pumpDone:
			case <-time.After(time.Second):
			}
			break readLoop
		default:
			_ = writeFrame(types.Frame{Type: types.FrameError, Message: "unknown frame type: " + frame.Type})
		}
	}

	// Disconnect kills the session: an interactive shell without a client
	// is an orphan with no other owner.
	if s.sessions.Kill(sess.ID) {
		log.Printf("api: websocket for session %s closed, session killed", sess.ID)
	}
	close(stop)

	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

// wsAuthorized gates the WebSocket endpoint. With auth disabled everything
// passes. Otherwise a session-scoped JWT (token query param, issued at
// session create) or the API key is accepted.
func (s *Server) wsAuthorized(c echo.Context, sessionID string) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	if token := c.QueryParam("token"); token != "" && s.tokens != nil {
		if claims, err := s.tokens.ValidateSessionToken(token); err == nil && claims.SessionID == sessionID {
			return true
		}
	}
	return auth.KeyMatches(auth.KeyFromRequest(c), s.cfg.APIKey)
}
