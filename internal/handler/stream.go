package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hireloop/chat-relay/internal/httputil"
	"github.com/hireloop/chat-relay/internal/registry"
	"github.com/hireloop/chat-relay/internal/sse"
)

// StreamHandler serves the downstream SSE leg of a chat connection. Each
// stream gets a server-minted connection ID; the client echoes it on every
// event POST.
type StreamHandler struct {
	registry *registry.Registry
	broker   Broadcaster
}

func NewStreamHandler(reg *registry.Registry, broker Broadcaster) *StreamHandler {
	return &StreamHandler{
		registry: reg,
		broker:   broker,
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	connID := uuid.NewString()

	h.registry.Register(connID)
	client := h.broker.Connect(connID)

	defer func() {
		h.broker.Disconnect(client)

		// Disconnect is not a close: the conversation stays open and a
		// reconnecting client rejoins it.
		if binding, ok := h.registry.Unbind(connID); ok {
			log.Info().
				Str("connectionId", connID).
				Int64("userId", binding.UserID).
				Int64("conversationId", binding.ConversationID).
				Msg("connection unbound on disconnect")
		} else {
			log.Info().
				Str("connectionId", connID).
				Msg("connection closed")
		}
	}()

	if err := h.sendEvent(w, flusher, "connected", map[string]any{"connectionId": connID}); err != nil {
		log.Error().Err(err).Str("connectionId", connID).Msg("failed to send connected event")
		return
	}

	ctx := r.Context()

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("connectionId", connID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Debug().
				Str("connectionId", connID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Str("connectionId", connID).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("connectionId", connID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *StreamHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *StreamHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
