package dictation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/intake"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/extraction"
)

// clientMessage is an inbound message from a dictation client.
type clientMessage struct {
	Type string `json:"type"` // segment, finalize, reset
	Text string `json:"text,omitempty"`
}

// serverMessage is an outbound message to a dictation client.
type serverMessage struct {
	Type     string               `json:"type"` // preview, result, reset, error
	Identity *extraction.Identity `json:"identity,omitempty"`
	Missing  []string             `json:"missing,omitempty"`
	Record   *intake.Record       `json:"record,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Intake is the slice of the intake service the dictation endpoint needs.
type Intake interface {
	ProcessTranscript(ctx context.Context, text, channel string) (*intake.Record, error)
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler handles HTTP-to-WebSocket upgrades for dictation sessions.
type Handler struct {
	hub    *Hub
	svc    Intake
	logger zerolog.Logger
}

// NewHandler creates a dictation handler bound to the given Hub and intake
// service.
func NewHandler(hub *Hub, svc Intake, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, svc: svc, logger: logger}
}

// RegisterRoutes registers the dictation stream endpoint on the provided
// Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/dictation/stream", h.HandleStream)
}

// HandleStream upgrades the connection, registers the session with the hub,
// and starts the read and write pumps.
func (h *Handler) HandleStream(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := &Session{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 16),
		hub:  h.hub,
		conn: &gorillaConnAdapter{ws},
	}
	h.hub.Register(session)
	h.logger.Info().Str("session_id", session.ID).Msg("dictation session opened")

	go h.writePump(session)
	go h.readPump(session)

	return nil
}

// readPump reads client messages and dispatches them until the connection
// drops, then unregisters the session.
func (h *Handler) readPump(s *Session) {
	defer func() {
		h.hub.Unregister(s)
		s.conn.Close()
		h.logger.Info().Str("session_id", s.ID).Msg("dictation session closed")
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}
		h.handleMessage(s, msg)
	}
}

// writePump writes queued server messages to the connection.
func (h *Handler) writePump(s *Session) {
	defer s.conn.Close()
	for message := range s.Send {
		if err := s.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (h *Handler) handleMessage(s *Session, msg clientMessage) {
	switch msg.Type {
	case "segment":
		s.append(msg.Text)
		id := extraction.Extract(s.Transcript())
		h.send(s, serverMessage{Type: "preview", Identity: &id, Missing: id.Missing()})

	case "finalize":
		text := s.Transcript()
		if text == "" {
			h.send(s, serverMessage{Type: "error", Error: "empty transcript"})
			return
		}
		rec, err := h.svc.ProcessTranscript(context.Background(), text, intake.ChannelDictation)
		if err != nil {
			h.logger.Error().Err(err).Str("session_id", s.ID).Msg("dictation finalize failed")
			h.send(s, serverMessage{Type: "error", Error: err.Error()})
			return
		}
		s.reset()
		h.send(s, serverMessage{Type: "result", Record: rec})

	case "reset":
		s.reset()
		h.send(s, serverMessage{Type: "reset"})
	}
}

func (h *Handler) send(s *Session, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("dictation: marshal server message")
		return
	}
	select {
	case s.Send <- data:
	default:
		// Session buffer full; skip to avoid blocking the read pump.
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy Conn.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
