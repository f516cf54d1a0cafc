package books

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookstore-api/internal/auth"
	"github.com/yourusername/bookstore-api/internal/storage"
)

// Importer は複数行の書籍を一括で追加できるサービスが実装します。
type Importer interface {
	ImportBooks(ctx context.Context, books []storage.BookInput) (int, error)
}

// ImportScheduler はインポートを非同期キューに投入するためのインターフェースです。
type ImportScheduler interface {
	ScheduleImport(ctx context.Context, owner string, books []storage.BookInput) (string, error)
}

// ImportOptions は同期/非同期切り替えとファイルサイズ上限の設定です。
type ImportOptions struct {
	Scheduler          ImportScheduler
	AsyncThresholdRows int
	MaxFileSize        int64
}

// multipart のヘッダー等の分だけ本文の上限に余裕を持たせる
const multipartOverhead = 64 * 1024

// ImportHandler は POST /books/import のハンドラーを返します。
func ImportHandler(svc Importer, opts ImportOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.MaxFileSize > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxFileSize+multipartOverhead)
		}

		file, err := c.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondWithError(c, limitExceeded(opts.MaxFileSize), "")
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_INPUT",
				"error": "multipart/form-data の file フィールドで JSON または CSV を送信してください。",
			})
			return
		}
		if opts.MaxFileSize > 0 && file.Size > opts.MaxFileSize {
			respondWithError(c, limitExceeded(opts.MaxFileSize), "")
			return
		}

		f, err := file.Open()
		if err != nil {
			respondWithError(c, err, "Failed to import books.")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondWithError(c, err, "Failed to import books.")
			return
		}

		rows, err := parseImport(data)
		if err != nil {
			respondWithError(c, err, "Failed to import books.")
			return
		}

		if shouldProcessAsync(len(rows), opts) {
			jobID, err := opts.Scheduler.ScheduleImport(c.Request.Context(), auth.CurrentUser(c), rows)
			if err != nil {
				respondWithError(c, err, "Failed to schedule import.")
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
			return
		}

		n, err := svc.ImportBooks(c.Request.Context(), rows)
		if err != nil {
			respondWithError(c, err, "Failed to import books.")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":  "Books Imported!",
			"imported": n,
		})
	}
}

func shouldProcessAsync(rows int, opts ImportOptions) bool {
	if opts.Scheduler == nil || opts.AsyncThresholdRows <= 0 {
		return false
	}
	return rows > opts.AsyncThresholdRows
}

func limitExceeded(max int64) *Error {
	return newError("LIMIT_EXCEEDED", fmt.Sprintf("ファイルサイズの上限（%d バイト）を超えています。", max), nil)
}
