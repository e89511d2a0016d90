package jobs

import (
	"context"
	"errors"
	"time"

	"murmur/internal/entry"

	"gorm.io/gorm"
)

// Queue owns AiJob rows. Job lifecycle transitions that are visible to the
// user (enqueue, terminal failure) also stamp the owning entry's ai_status
// and error_msg in the same transaction.
type Queue struct {
	DB *gorm.DB
}

// EnqueueResult reports whether a new job was inserted. Enqueued=false
// means an identical job was already queued or running; that is a normal
// outcome, not an error, and JobID names the existing job.
type EnqueueResult struct {
	Enqueued bool
	JobID    uint64
}

func (q *Queue) Enqueue(ctx context.Context, workspaceID uint64, entryID, jobType string) (EnqueueResult, error) {
	var res EnqueueResult

	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing AiJob
		err := tx.Where(
			"workspace_id = ? AND entry_id = ? AND type = ? AND status IN ?",
			workspaceID, entryID, jobType, []string{StatusQueued, StatusRunning},
		).First(&existing).Error
		if err == nil {
			res = EnqueueResult{Enqueued: false, JobID: existing.ID}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		j := AiJob{
			WorkspaceID: workspaceID,
			EntryID:     entryID,
			Type:        jobType,
			Status:      StatusQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&j).Error; err != nil {
			return err
		}

		// Entry becomes visibly "in flight" as part of the same unit.
		if err := tx.Model(&entry.Entry{}).
			Where("id = ? AND workspace_id = ?", entryID, workspaceID).
			Updates(map[string]any{"ai_status": entry.StatusQueued, "error_msg": nil}).Error; err != nil {
			return err
		}

		res = EnqueueResult{Enqueued: true, JobID: j.ID}
		return nil
	})

	return res, err
}

// ClaimNext picks the oldest queued job for the workspace and transitions
// it to running with a conditional update. A zero affected-row count means
// another claimer won the race; the caller gets nil and should move on
// rather than retry the same claim.
func (q *Queue) ClaimNext(ctx context.Context, workspaceID uint64) (*AiJob, error) {
	var job AiJob

	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("workspace_id = ? AND status = ?", workspaceID, StatusQueued).
			Order("created_at asc, id asc").
			First(&job).Error
		if err != nil {
			return err
		}

		res := tx.Model(&AiJob{}).
			Where("id = ? AND status = ?", job.ID, StatusQueued).
			Updates(map[string]any{"status": StatusRunning, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race
			job = AiJob{}
			return nil
		}

		job.Status = StatusRunning
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (q *Queue) MarkDone(ctx context.Context, id uint64) error {
	return q.DB.WithContext(ctx).Model(&AiJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": StatusDone, "updated_at": time.Now()}).Error
}

// RequeueOrFail records a failed attempt. Below maxAttempts the job goes
// back to queued and the entry keeps ai_status=queued with the error noted;
// at the cap the job and the entry are both marked error. Terminal: only a
// fresh Enqueue restarts processing after that.
func (q *Queue) RequeueOrFail(ctx context.Context, job *AiJob, errMsg string, maxAttempts int) error {
	attempts := job.Attempts + 1
	terminal := attempts >= maxAttempts

	return q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status := StatusQueued
		if terminal {
			status = StatusError
		}
		if err := tx.Model(&AiJob{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":     status,
			"attempts":   attempts,
			"last_error": errMsg,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}

		fields := map[string]any{"error_msg": errMsg}
		if terminal {
			fields["ai_status"] = entry.StatusError
		}
		return tx.Model(&entry.Entry{}).
			Where("id = ? AND workspace_id = ?", job.EntryID, job.WorkspaceID).
			Updates(fields).Error
	})
}

// ResetAbandoned moves running jobs back to queued. Called once at startup:
// in a single-process deployment any job still running at boot was orphaned
// by a crash and is safe to re-claim.
func (q *Queue) ResetAbandoned(ctx context.Context) (int64, error) {
	res := q.DB.WithContext(ctx).Model(&AiJob{}).
		Where("status = ?", StatusRunning).
		Updates(map[string]any{"status": StatusQueued, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// WorkspacesWithQueued returns the workspaces that currently have queued
// work, for the periodic sweep.
func (q *Queue) WorkspacesWithQueued(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := q.DB.WithContext(ctx).Model(&AiJob{}).
		Where("status = ?", StatusQueued).
		Distinct("workspace_id").
		Pluck("workspace_id", &ids).Error
	return ids, err
}
