package books

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookstore-api/internal/middleware"
	"github.com/yourusername/bookstore-api/internal/storage"
)

// Error はクライアントに返すエラーコードとメッセージを保持します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

var errBookNotFound = newError("BOOK_NOT_FOUND", "Book not found.", storage.ErrNotFound)

// respondWithError はエラーの種類に応じたステータスで JSON を返します。
// 想定外のエラーはログに残し、failMessage だけをクライアントに見せます。
func respondWithError(c *gin.Context, err error, failMessage string) {
	var apiErr *Error
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":  errBookNotFound.Code,
			"error": errBookNotFound.Message,
		})
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "LIMIT_EXCEEDED" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":  apiErr.Code,
			"error": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":  "REQUEST_CANCELED",
			"error": "リクエストがキャンセルされました。",
		})
	default:
		log.Printf("[%s] %s %s: %v", middleware.RequestIDFrom(c), c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": failMessage,
		})
	}
}
