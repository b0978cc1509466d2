package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/intake"
)

type fakeConn struct {
	in     chan []byte
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.in
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, msg, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
	return nil
}

type fakeIntake struct {
	gotText    string
	gotChannel string
	record     *intake.Record
	err        error
}

func (f *fakeIntake) ProcessTranscript(_ context.Context, text, channel string) (*intake.Record, error) {
	f.gotText = text
	f.gotChannel = channel
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func newTestSession(hub *Hub) (*Session, *fakeConn) {
	conn := newFakeConn()
	s := &Session{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 16),
		hub:  hub,
		conn: conn,
	}
	hub.Register(s)
	return s, conn
}

func recvMessage(t *testing.T, s *Session) serverMessage {
	t.Helper()
	select {
	case data := <-s.Send:
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal server message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server message")
		return serverMessage{}
	}
}

func TestHandleMessage_SegmentPreview(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, &fakeIntake{}, zerolog.Nop())
	s, _ := newTestSession(hub)
	defer hub.Unregister(s)

	h.handleMessage(s, clientMessage{Type: "segment", Text: "enrolling patient John Smith today"})

	msg := recvMessage(t, s)
	if msg.Type != "preview" {
		t.Fatalf("expected preview, got %q", msg.Type)
	}
	if msg.Identity == nil || msg.Identity.FirstName == nil || *msg.Identity.FirstName != "John" {
		t.Fatalf("expected first name John in preview, got %+v", msg.Identity)
	}
	if len(msg.Missing) != 1 || msg.Missing[0] != "date_of_birth" {
		t.Errorf("expected date_of_birth missing, got %v", msg.Missing)
	}

	// Second segment completes the identity against the accumulated text.
	h.handleMessage(s, clientMessage{Type: "segment", Text: "date of birth 3/14/1975"})

	msg = recvMessage(t, s)
	if msg.Identity == nil || msg.Identity.DateOfBirth == nil || *msg.Identity.DateOfBirth != "03/14/1975" {
		t.Fatalf("expected normalized DOB in preview, got %+v", msg.Identity)
	}
	if len(msg.Missing) != 0 {
		t.Errorf("expected nothing missing, got %v", msg.Missing)
	}
}

func TestHandleMessage_FinalizeRunsPipeline(t *testing.T) {
	hub := NewHub()
	svc := &fakeIntake{record: &intake.Record{ID: uuid.New(), Status: intake.StatusComplete}}
	h := NewHandler(hub, svc, zerolog.Nop())
	s, _ := newTestSession(hub)
	defer hub.Unregister(s)

	h.handleMessage(s, clientMessage{Type: "segment", Text: "patient John Smith"})
	<-s.Send
	h.handleMessage(s, clientMessage{Type: "segment", Text: "born 3/14/1975"})
	<-s.Send

	h.handleMessage(s, clientMessage{Type: "finalize"})

	msg := recvMessage(t, s)
	if msg.Type != "result" {
		t.Fatalf("expected result, got %q (error: %s)", msg.Type, msg.Error)
	}
	if svc.gotText != "patient John Smith born 3/14/1975" {
		t.Errorf("unexpected transcript: %q", svc.gotText)
	}
	if svc.gotChannel != intake.ChannelDictation {
		t.Errorf("expected dictation channel, got %q", svc.gotChannel)
	}
	if msg.Record == nil || msg.Record.Status != intake.StatusComplete {
		t.Errorf("expected complete record in result, got %+v", msg.Record)
	}
	if got := s.Transcript(); got != "" {
		t.Errorf("expected buffer cleared after finalize, got %q", got)
	}
}

func TestHandleMessage_FinalizeEmptyTranscript(t *testing.T) {
	hub := NewHub()
	svc := &fakeIntake{}
	h := NewHandler(hub, svc, zerolog.Nop())
	s, _ := newTestSession(hub)
	defer hub.Unregister(s)

	h.handleMessage(s, clientMessage{Type: "finalize"})

	msg := recvMessage(t, s)
	if msg.Type != "error" {
		t.Fatalf("expected error, got %q", msg.Type)
	}
	if svc.gotChannel != "" {
		t.Error("pipeline should not run on an empty transcript")
	}
}

func TestHandleMessage_FinalizeFailure(t *testing.T) {
	hub := NewHub()
	svc := &fakeIntake{err: errors.New("db down")}
	h := NewHandler(hub, svc, zerolog.Nop())
	s, _ := newTestSession(hub)
	defer hub.Unregister(s)

	h.handleMessage(s, clientMessage{Type: "segment", Text: "patient John Smith born 3/14/1975"})
	<-s.Send
	h.handleMessage(s, clientMessage{Type: "finalize"})

	msg := recvMessage(t, s)
	if msg.Type != "error" {
		t.Fatalf("expected error, got %q", msg.Type)
	}
	// A failed finalize keeps the transcript so the client can retry.
	if got := s.Transcript(); got == "" {
		t.Error("expected buffer kept after failed finalize")
	}
}

func TestHandleMessage_Reset(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, &fakeIntake{}, zerolog.Nop())
	s, _ := newTestSession(hub)
	defer hub.Unregister(s)

	h.handleMessage(s, clientMessage{Type: "segment", Text: "patient John Smith"})
	<-s.Send
	h.handleMessage(s, clientMessage{Type: "reset"})

	msg := recvMessage(t, s)
	if msg.Type != "reset" {
		t.Fatalf("expected reset, got %q", msg.Type)
	}
	if got := s.Transcript(); got != "" {
		t.Errorf("expected empty transcript after reset, got %q", got)
	}
}

func TestReadPump_UnregistersOnClose(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, &fakeIntake{}, zerolog.Nop())
	s, conn := newTestSession(hub)

	done := make(chan struct{})
	go func() {
		h.readPump(s)
		close(done)
	}()

	conn.in <- []byte(`{"type":"segment","text":"patient John Smith"}`)
	recvMessage(t, s)
	if hub.SessionCount() != 1 {
		t.Fatalf("expected 1 active session, got %d", hub.SessionCount())
	}

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit after close")
	}
	if hub.SessionCount() != 0 {
		t.Errorf("expected session unregistered, got %d", hub.SessionCount())
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()
	s1, c1 := newTestSession(hub)
	s2, c2 := newTestSession(hub)

	if hub.SessionCount() != 2 {
		t.Fatalf("expected 2 sessions, got %d", hub.SessionCount())
	}

	hub.CloseAll()
	if !c1.closed || !c2.closed {
		t.Error("expected all connections closed")
	}

	// Unregister is idempotent and normally driven by the read pumps.
	hub.Unregister(s1)
	hub.Unregister(s1)
	hub.Unregister(s2)
	if hub.SessionCount() != 0 {
		t.Errorf("expected 0 sessions, got %d", hub.SessionCount())
	}
}
