package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/chat-relay/internal/model"
	"github.com/hireloop/chat-relay/internal/registry"
	"github.com/hireloop/chat-relay/internal/sse"
)

func startStream(t *testing.T) (*registry.Registry, *fakeBroadcaster, *sse.Client, *httptest.ResponseRecorder, context.CancelFunc, chan struct{}) {
	t.Helper()

	reg := registry.New()
	broker := newFakeBroadcaster()
	h := NewStreamHandler(reg, broker)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/chat/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case client := <-broker.connected:
		return reg, broker, client, rec, cancel, done
	case <-time.After(time.Second):
		t.Fatal("stream never connected")
		return nil, nil, nil, nil, nil, nil
	}
}

func TestStreamHandler(t *testing.T) {
	t.Run("registers connection and forwards events until client disconnects", func(t *testing.T) {
		reg, _, client, rec, cancel, done := startStream(t)

		assert.Equal(t, 1, reg.TotalConnections())

		client.Events <- sse.Event{Type: "new_message", Data: json.RawMessage(`{"content":"hi"}`)}
		time.Sleep(20 * time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stream did not shut down")
		}

		body := rec.Body.String()
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Contains(t, body, "event: connected")
		assert.Contains(t, body, client.ConnectionID)
		assert.Contains(t, body, "event: new_message")
		assert.Contains(t, body, `{"content":"hi"}`)

		assert.Equal(t, 0, reg.TotalConnections(), "disconnect unregisters the connection")
	})

	t.Run("broker done closes the stream", func(t *testing.T) {
		reg, _, client, _, cancel, done := startStream(t)
		defer cancel()

		close(client.Done)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stream did not shut down")
		}

		assert.Equal(t, 0, reg.TotalConnections())
	})

	t.Run("disconnect leaves the conversation open", func(t *testing.T) {
		reg, _, client, _, cancel, done := startStream(t)

		reg.Bind(client.ConnectionID, 1, model.UserRoleCandidate, 7)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stream did not shut down")
		}

		_, bound := reg.Lookup(client.ConnectionID)
		assert.False(t, bound, "binding is gone")
		assert.Empty(t, reg.RoomMembers(7), "room membership is gone")
	})
}

func TestStreamHandlerRequiresFlusher(t *testing.T) {
	h := NewStreamHandler(registry.New(), newFakeBroadcaster())

	rec := &nonFlushingWriter{header: make(http.Header)}
	req := httptest.NewRequest(http.MethodGet, "/chat/stream", nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.status)
}

type nonFlushingWriter struct {
	header http.Header
	status int
	body   []byte
}

func (w *nonFlushingWriter) Header() http.Header { return w.header }

func (w *nonFlushingWriter) Write(p []byte) (int, error) {
	w.body = append(w.body, p...)
	return len(p), nil
}

func (w *nonFlushingWriter) WriteHeader(status int) { w.status = status }
