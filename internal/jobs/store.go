package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"
)

// ErrJobNotFound は更新対象のジョブが Redis に存在しないことを表します。
var ErrJobNotFound = errors.New("jobs: job not found")

// Store はジョブ状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Ping は Redis への疎通を確認します。
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close は Redis クライアントを閉じます。
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Get はジョブ情報を取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create は新しいジョブ情報を保存します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	stampNew(record, time.Now().UTC(), s.ttl)

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// MarkRunning はワーカーが処理を開始したことを保存します。
// キューで待っていた時間の分だけ期限が縮まないよう、有効期限はここから数え直します。
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.updatePartial(ctx, jobID, true, markRunning)
}

// MarkDone はジョブ完了時の情報を保存します。
func (s *Store) MarkDone(ctx context.Context, jobID string, result *Result) error {
	return s.updatePartial(ctx, jobID, false, func(record *Record) {
		markDone(record, result)
	})
}

// MarkFailed はジョブ失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, jobID, false, func(record *Record) {
		markFailed(record, errInfo)
	})
}

// updatePartial は WATCH で楽観ロックをかけてレコードを書き換えます。
// refresh が false の場合、有効期限はキーに残っているものを引き継ぎます。
func (s *Store) updatePartial(ctx context.Context, jobID string, refresh bool, mutate func(*Record)) error {
	key := jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		now := time.Now().UTC()
		record.UpdatedAt = now
		var expiration time.Duration = redis.KeepTTL
		if refresh && s.ttl > 0 {
			record.ExpiresAt = now.Add(s.ttl)
			expiration = s.ttl
		}
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, expiration)
			return nil
		})
		return err
	}

	for {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
}

func stampNew(record *Record, now time.Time, ttl time.Duration) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(ttl)
	}
}

func markRunning(record *Record) {
	record.Status = StatusRunning
	record.Progress = ProgressInfo{Percent: 20, Stage: "import"}
}

func markDone(record *Record, result *Result) {
	record.Status = StatusSucceeded
	record.Progress = ProgressInfo{Percent: 100, Stage: "completed"}
	record.Result = result
	record.Error = nil
}

func markFailed(record *Record, errInfo *ErrorInfo) {
	record.Status = StatusFailed
	if errInfo != nil {
		record.Error = errInfo
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
