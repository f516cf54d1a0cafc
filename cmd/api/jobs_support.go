package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/bookstore-api/internal/auth"
	"github.com/yourusername/bookstore-api/internal/config"
	"github.com/yourusername/bookstore-api/internal/jobs"
	"github.com/yourusername/bookstore-api/internal/middleware"
)

type jobRecords interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

func setupJobs(cfg *config.Config, importer jobs.Importer) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 10
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis is not reachable: %w", err)
	}

	manager, err := jobs.NewManager(cfg, importer, store, log.Default())
	if err != nil {
		store.Close()
		return nil, err
	}
	return manager, nil
}

// jobStatusHandler は GET /jobs/:id のハンドラーを返します。
// 他のユーザーが投入したジョブは存在しないものとして扱います。
func jobStatusHandler(records jobRecords) gin.HandlerFunc {
	return func(c *gin.Context) {
		if records == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"code":  "JOBS_DISABLED",
				"error": "非同期ジョブは無効になっています。",
			})
			return
		}

		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_INPUT",
				"error": "jobId を指定してください。",
			})
			return
		}

		record, err := records.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			log.Printf("[%s] get job %s: %v", middleware.RequestIDFrom(c), jobID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":  "INTERNAL_ERROR",
				"error": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil || record.Owner != auth.CurrentUser(c) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":  "JOB_NOT_FOUND",
				"error": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"operation": record.Operation,
			"status":    record.Status,
			"rows":      record.Rows,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
			},
			"updatedAt": record.UpdatedAt,
			"expiresAt": record.ExpiresAt,
		}
		if record.Result != nil {
			payload["result"] = record.Result
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}
