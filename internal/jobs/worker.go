package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"murmur/internal/aiclient"
	"murmur/internal/entry"
)

// AIClient is the slice of the backend client the worker needs.
type AIClient interface {
	Transcribe(ctx context.Context, audioURI string) (string, error)
	Summarize(ctx context.Context, transcript string) (entry.Summary, error)
	SuggestTags(ctx context.Context, transcript, summary string) ([]string, error)
}

// Worker drains the job queue one workspace at a time. At most one drain
// loop runs per workspace; overlapping triggers are silent no-ops.
type Worker struct {
	Queue       *Queue
	Entries     *entry.Store
	AI          AIClient
	Log         *slog.Logger
	MaxAttempts int

	mu     sync.Mutex
	flight map[uint64]bool
}

func NewWorker(q *Queue, s *entry.Store, ai AIClient, log *slog.Logger, maxAttempts int) *Worker {
	return &Worker{
		Queue:       q,
		Entries:     s,
		AI:          ai,
		Log:         log,
		MaxAttempts: maxAttempts,
		flight:      make(map[uint64]bool),
	}
}

// Kick starts a drain pass for the workspace in the background. Safe to
// call from anywhere that might have produced work; the drain is detached
// from the caller's cancellation so a finished HTTP request does not kill
// it mid-job.
func (w *Worker) Kick(ctx context.Context, workspaceID uint64) {
	go w.Drain(context.WithoutCancel(ctx), workspaceID)
}

// Drain claims and processes jobs until the workspace's queue is empty.
// Returns immediately if a drain for this workspace is already active.
func (w *Worker) Drain(ctx context.Context, workspaceID uint64) {
	w.mu.Lock()
	if w.flight[workspaceID] {
		w.mu.Unlock()
		return
	}
	w.flight[workspaceID] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.flight, workspaceID)
		w.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.Queue.ClaimNext(ctx, workspaceID)
		if err != nil {
			w.Log.Error("claim failed", "workspace", workspaceID, "err", err)
			return
		}
		if job == nil {
			return
		}

		if err := w.process(ctx, job); err != nil {
			msg := normalizeError(err)
			w.Log.Warn("job failed",
				"workspace", workspaceID, "job", job.ID, "type", job.Type,
				"attempt", job.Attempts+1, "err", msg)
			if err := w.Queue.RequeueOrFail(ctx, job, msg, w.MaxAttempts); err != nil {
				w.Log.Error("requeue failed", "job", job.ID, "err", err)
			}
		}
	}
}

// process runs one claimed job. Panics are converted to job failures so a
// bad job can never kill the drain loop.
func (w *Worker) process(ctx context.Context, job *AiJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch job.Type {
	case TypeTranscribe:
		return w.transcribe(ctx, job)
	case TypeSummarize:
		return w.summarize(ctx, job)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) transcribe(ctx context.Context, job *AiJob) error {
	e, err := w.Entries.Get(ctx, job.WorkspaceID, job.EntryID)
	if err != nil {
		return err
	}

	// A prior run may have stored the transcript but crashed before
	// advancing; skip the remote call and just chain.
	if e.Transcript != nil && strings.TrimSpace(*e.Transcript) != "" {
		return w.chainSummarize(ctx, job)
	}

	text, err := w.AI.Transcribe(ctx, e.AudioURI)
	if err != nil {
		return err
	}

	if err := w.Entries.Update(ctx, job.WorkspaceID, job.EntryID, map[string]any{
		"transcript": text,
		"ai_status":  entry.StatusTranscribed,
		"error_msg":  nil,
	}); err != nil {
		return err
	}

	return w.chainSummarize(ctx, job)
}

// chainSummarize enqueues the follow-on summarize job, then closes the
// transcribe job. The enqueue flips the entry back to queued, so readers
// never see a transcribed entry without a pending summarize job.
func (w *Worker) chainSummarize(ctx context.Context, job *AiJob) error {
	if _, err := w.Queue.Enqueue(ctx, job.WorkspaceID, job.EntryID, TypeSummarize); err != nil {
		return err
	}
	return w.Queue.MarkDone(ctx, job.ID)
}

func (w *Worker) summarize(ctx context.Context, job *AiJob) error {
	e, err := w.Entries.Get(ctx, job.WorkspaceID, job.EntryID)
	if err != nil {
		return err
	}
	if e.Transcript == nil || strings.TrimSpace(*e.Transcript) == "" {
		return errors.New("entry has no transcript to summarize")
	}

	sum, err := w.AI.Summarize(ctx, *e.Transcript)
	if err != nil {
		return err
	}
	blob := entry.FormatSummary(sum)

	if err := w.Entries.Update(ctx, job.WorkspaceID, job.EntryID, map[string]any{
		"summary":   blob,
		"ai_status": entry.StatusSummarized,
		"error_msg": nil,
	}); err != nil {
		return err
	}
	if err := w.Queue.MarkDone(ctx, job.ID); err != nil {
		return err
	}

	// Tags are an enhancement: a failure here is recorded on the entry but
	// never turns a successful summarize into a job failure.
	if note := w.suggestTags(ctx, job, *e.Transcript, blob); note != nil {
		if err := w.Entries.Update(ctx, job.WorkspaceID, job.EntryID, map[string]any{
			"error_msg": *note,
		}); err != nil {
			w.Log.Error("recording tag failure note failed", "entry", job.EntryID, "err", err)
		}
	}

	return nil
}

// suggestTags runs the best-effort tag suggestion and returns a note
// describing the failure, or nil on success.
func (w *Worker) suggestTags(ctx context.Context, job *AiJob, transcript, summary string) *string {
	names, err := w.AI.SuggestTags(ctx, transcript, summary)
	if err != nil {
		note := "tag suggestion failed: " + normalizeError(err)
		return &note
	}
	if len(names) == 0 {
		return nil
	}
	if err := w.Entries.AttachTags(ctx, job.WorkspaceID, job.EntryID, names); err != nil {
		note := "tag suggestion failed: " + normalizeError(err)
		return &note
	}
	return nil
}

// normalizeError turns an error into the string stored on the job and the
// entry. Connectivity failures get rewritten into something the user can
// act on instead of a raw transport message.
func normalizeError(err error) string {
	var netErr net.Error
	if errors.Is(err, aiclient.ErrUnreachable) || errors.As(err, &netErr) {
		return "AI backend unreachable: check the backend address and that the service is running"
	}
	return err.Error()
}
