// Package jobs は書籍インポートの非同期ジョブ管理機能を提供します。
//
// ジョブは Asynq のキューに投入され、状態は Redis に "job:<id>" キーで保存されます。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/bookstore-api/internal/config"
	"github.com/yourusername/bookstore-api/internal/storage"
)

const (
	taskTypeImport = "books:import"
	importQueue    = "import"
)

// Importer は書籍をまとめて保存するサービスが実装します。
type Importer interface {
	ImportBooks(ctx context.Context, books []storage.BookInput) (int, error)
}

type recordStore interface {
	Get(ctx context.Context, jobID string) (*Record, error)
	Create(ctx context.Context, record *Record) error
	MarkRunning(ctx context.Context, jobID string) error
	MarkDone(ctx context.Context, jobID string, result *Result) error
	MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	client   taskEnqueuer
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    recordStore
	importer Importer
	logger   *log.Logger
	newID    func() string
}

// TaskPayload はインポートジョブのペイロードです。
type TaskPayload struct {
	JobID string              `json:"jobId"`
	Owner string              `json:"owner"`
	Books []storage.BookInput `json:"books"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, importer Importer, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if importer == nil {
		return nil, errors.New("importer is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	// SQLite への書き込みは直列なので並列度は上げない
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				importQueue: 1,
			},
		},
	)

	manager := newManager(asynq.NewClient(opt), store, importer, logger)
	manager.server = server
	return manager, nil
}

func newManager(client taskEnqueuer, store recordStore, importer Importer, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		client:   client,
		mux:      asynq.NewServeMux(),
		store:    store,
		importer: importer,
		logger:   logger,
		newID:    uuid.NewString,
	}
	m.mux.HandleFunc(taskTypeImport, m.handleImportTask)
	return m
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	if m.server == nil {
		return
	}
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアント、ジョブ状態の保存先を閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.server != nil {
		m.server.Shutdown()
	}
	var errs []error
	if err := m.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close asynq client: %w", err))
	}
	if closer, ok := m.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ScheduleImport は検証済みの行をインポートジョブとしてキューに投入し、ジョブ ID を返します。
func (m *Manager) ScheduleImport(ctx context.Context, owner string, books []storage.BookInput) (string, error) {
	if len(books) == 0 {
		return "", fmt.Errorf("no rows to import")
	}

	payload := &TaskPayload{
		JobID: m.newID(),
		Owner: owner,
		Books: books,
	}
	record := &Record{
		JobID:     payload.JobID,
		Operation: OperationImport,
		Owner:     owner,
		Rows:      len(books),
		Status:    StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}
	if err := m.store.Create(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeImport, body, asynq.Queue(importQueue))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.TaskID(payload.JobID), asynq.MaxRetry(1)); err != nil {
		if markErr := m.failJob(context.WithoutCancel(ctx), payload.JobID, "ENQUEUE_FAILED", "ジョブの投入に失敗しました。"); markErr != nil {
			m.logger.Printf("failed to mark job=%s as failed: %v", payload.JobID, markErr)
		}
		return "", err
	}
	return payload.JobID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) finishJob(ctx context.Context, jobID string, imported int) error {
	return m.store.MarkDone(ctx, jobID, &Result{Imported: imported})
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	return m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	})
}

// failJobWithError は内部エラーの詳細をログにだけ残し、レコードには汎用メッセージを保存します。
func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	m.logger.Printf("import job=%s failed: %v", jobID, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return m.failJob(context.WithoutCancel(ctx), jobID, "CANCELED", "インポートが中断されました。")
	}
	return m.failJob(ctx, jobID, "INTERNAL_ERROR", "Failed to import books.")
}
