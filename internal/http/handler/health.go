package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// AIHealth is the probe slice of the backend client.
type AIHealth interface {
	Health(ctx context.Context) (bool, string, error)
}

type HealthHandler struct {
	AI AIHealth
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	aiOK, service, err := h.AI.Health(ctx)
	if err != nil {
		aiOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":         true,
		"ai_ok":      aiOK,
		"ai_service": service,
	})
}
