package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"murmur/internal/entry"
	"murmur/internal/jobs"
	"murmur/internal/workspace"

	"github.com/go-chi/chi/v5"
)

type EntryHandler struct {
	Store  *entry.Store
	Queue  *jobs.Queue
	Worker *jobs.Worker
}

type createEntryReq struct {
	AudioURI    string `json:"audio_uri"`
	DurationSec int    `json:"duration_sec"`
}

type entryDTO struct {
	ID          string      `json:"id"`
	CreatedAt   int64       `json:"created_at"`
	AudioURI    string      `json:"audio_uri"`
	DurationSec int         `json:"duration_sec"`
	Transcript  *string     `json:"transcript"`
	Summary     *summaryDTO `json:"summary"`
	AIStatus    string      `json:"ai_status"`
	ErrorMsg    *string     `json:"error_msg"`
	Tags        []string    `json:"tags,omitempty"`
}

type summaryDTO struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

func toDTO(e *entry.Entry, tags []string) entryDTO {
	dto := entryDTO{
		ID:          e.ID,
		CreatedAt:   e.CreatedAt,
		AudioURI:    e.AudioURI,
		DurationSec: e.DurationSec,
		Transcript:  e.Transcript,
		AIStatus:    e.AIStatus,
		ErrorMsg:    e.ErrorMsg,
		Tags:        tags,
	}
	if e.Summary != nil {
		s := entry.ParseSummary(*e.Summary)
		dto.Summary = &summaryDTO{Title: s.Title, Bullets: s.Bullets}
	}
	return dto
}

// Create stores a new entry and immediately enqueues its transcribe job.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	wsID, _ := workspace.FromContext(r.Context())

	var req createEntryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.AudioURI = strings.TrimSpace(req.AudioURI)
	if req.AudioURI == "" {
		http.Error(w, "audio_uri required", http.StatusBadRequest)
		return
	}

	e, err := h.Store.Create(r.Context(), wsID, entry.CreateInput{
		AudioURI:    req.AudioURI,
		DurationSec: req.DurationSec,
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.Queue.Enqueue(r.Context(), wsID, e.ID, jobs.TypeTranscribe); err != nil {
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}
	h.Worker.Kick(r.Context(), wsID)

	e.AIStatus = entry.StatusQueued

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toDTO(e, nil))
}

func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	wsID, _ := workspace.FromContext(r.Context())

	rows, err := h.Store.List(r.Context(), wsID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]entryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toDTO(&rows[i], nil))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	wsID, _ := workspace.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	e, err := h.Store.Get(r.Context(), wsID, id)
	if err != nil {
		if errors.Is(err, entry.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	tags, err := h.Store.TagsFor(r.Context(), wsID, id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toDTO(e, tags))
}

func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wsID, _ := workspace.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.Store.Delete(r.Context(), wsID, id); err != nil {
		if errors.Is(err, entry.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Retry re-runs the pipeline for an entry. Allowed once the prior job is
// terminal; if one is still queued or running the enqueue is a no-op.
func (h *EntryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	wsID, _ := workspace.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	e, err := h.Store.Get(r.Context(), wsID, id)
	if err != nil {
		if errors.Is(err, entry.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// Resume where the pipeline stopped: with a transcript in hand only
	// summarization is outstanding.
	jobType := jobs.TypeTranscribe
	if e.Transcript != nil && strings.TrimSpace(*e.Transcript) != "" {
		jobType = jobs.TypeSummarize
	}

	res, err := h.Queue.Enqueue(r.Context(), wsID, id, jobType)
	if err != nil {
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}
	h.Worker.Kick(r.Context(), wsID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"enqueued": res.Enqueued,
		"job_id":   res.JobID,
	})
}

func (h *EntryHandler) Tags(w http.ResponseWriter, r *http.Request) {
	wsID, _ := workspace.FromContext(r.Context())

	tags, err := h.Store.ListTags(r.Context(), wsID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(names)
}
