package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"murmur/internal/workspace"
)

type WorkspaceHandler struct {
	Svc *workspace.Service
	JWT *workspace.JWT
}

type workspaceReq struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

func (h *WorkspaceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req workspaceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	ws, err := h.Svc.Register(r.Context(), req.Name, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrBadCredential):
			http.Error(w, "invalid input", http.StatusBadRequest)
		case errors.Is(err, workspace.ErrNameTaken):
			http.Error(w, "name already used", http.StatusConflict)
		default:
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	h.respondToken(w, ws.ID, http.StatusCreated)
}

func (h *WorkspaceHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req workspaceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	ws, err := h.Svc.Login(r.Context(), req.Name, req.Secret)
	if err != nil {
		if errors.Is(err, workspace.ErrBadCredential) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.respondToken(w, ws.ID, http.StatusOK)
}

func (h *WorkspaceHandler) respondToken(w http.ResponseWriter, workspaceID uint64, code int) {
	token, err := h.JWT.Sign(workspaceID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"token": token})
}
