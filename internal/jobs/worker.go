package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// handleImportTask は "books:import" タスクを処理します。
// インポートは 1 トランザクションなので、失敗時は 1 行も書き込まれません。
// コミット後は状態の保存に失敗してもリトライさせません（同じ行が二重に入るため）。
func (m *Manager) handleImportTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	record, err := m.store.Get(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if record != nil && record.Status == StatusSucceeded {
		m.logger.Printf("import job=%s already done, skipping", payload.JobID)
		return nil
	}

	if err := m.markRunning(ctx, record, payload); err != nil {
		return err
	}

	n, err := m.importer.ImportBooks(ctx, payload.Books)
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	m.logger.Printf("import job=%s owner=%s imported=%d", payload.JobID, payload.Owner, n)

	if err := m.finishJob(context.WithoutCancel(ctx), payload.JobID, n); err != nil {
		m.logger.Printf("import job=%s committed but status update failed: %v", payload.JobID, err)
		return fmt.Errorf("mark job %s done: %v: %w", payload.JobID, err, asynq.SkipRetry)
	}
	return nil
}

// markRunning はレコードを running にします。キューで待つ間に期限切れで消えていた場合は
// ペイロードからレコードを作り直し、ジョブ自体は処理します。
func (m *Manager) markRunning(ctx context.Context, record *Record, payload TaskPayload) error {
	if record != nil {
		err := m.store.MarkRunning(ctx, payload.JobID)
		if !errors.Is(err, ErrJobNotFound) {
			return err
		}
	}

	m.logger.Printf("import job=%s record expired while queued, recreating", payload.JobID)
	recreated := &Record{
		JobID:     payload.JobID,
		Operation: OperationImport,
		Owner:     payload.Owner,
		Rows:      len(payload.Books),
	}
	markRunning(recreated)
	return m.store.Create(ctx, recreated)
}
