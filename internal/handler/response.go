package handler

import (
	"context"
	"net/http"

	"github.com/hireloop/chat-relay/internal/httputil"
)

// writeAck writes a success acknowledgement with the given extra fields.
func writeAck(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.WriteError(ctx, w, err)
}
