// Package books は /books 配下の HTTP ハンドラーを提供します。
package books

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookstore-api/internal/storage"
)

// Service は書籍ハンドラーが利用する永続化の操作です。
type Service interface {
	ListBooks(ctx context.Context) ([]storage.Book, error)
	GetBook(ctx context.Context, id int64) (*storage.Book, error)
	CreateBook(ctx context.Context, in storage.BookInput) (int64, error)
	UpdateBook(ctx context.Context, id int64, patch storage.BookPatch) error
	DeleteBook(ctx context.Context, id int64) error
}

// createBookRequest の各フィールドはポインタにして、"" や 0 と未指定を区別する。
type createBookRequest struct {
	Name   *string  `json:"name" binding:"required"`
	Author *string  `json:"author" binding:"required"`
	Price  *float64 `json:"price" binding:"required"`
}

func (r createBookRequest) input() storage.BookInput {
	return storage.BookInput{Name: *r.Name, Author: *r.Author, Price: *r.Price}
}

type updateBookRequest struct {
	Name   *string  `json:"name"`
	Author *string  `json:"author"`
	Price  *float64 `json:"price"`
}

// ListHandler は GET /books のハンドラーを返します。
func ListHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		books, err := svc.ListBooks(c.Request.Context())
		if err != nil {
			respondWithError(c, err, "Failed to retrieve books.")
			return
		}
		c.JSON(http.StatusOK, books)
	}
}

// GetHandler は GET /books/:id のハンドラーを返します。
func GetHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		book, err := svc.GetBook(c.Request.Context(), id)
		if err != nil {
			respondWithError(c, err, "Failed to retrieve book.")
			return
		}
		if book == nil {
			respondWithError(c, errBookNotFound, "")
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

// CreateHandler は POST /books のハンドラーを返します。
func CreateHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_INPUT",
				"error": "name (string), author (string), price (number) を JSON で送ってください",
			})
			return
		}

		id, err := svc.CreateBook(c.Request.Context(), req.input())
		if err != nil {
			respondWithError(c, err, "Failed to create book.")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Book Added!",
			"id":      id,
		})
	}
}

// UpdateHandler は PUT /books/:id のハンドラーを返します。
func UpdateHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		var req updateBookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_INPUT",
				"error": "name (string), author (string), price (number) のいずれかを JSON で送ってください",
			})
			return
		}

		patch := storage.BookPatch{Name: req.Name, Author: req.Author, Price: req.Price}
		if err := svc.UpdateBook(c.Request.Context(), id, patch); err != nil {
			respondWithError(c, err, "Failed to update book.")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Book Updated!"})
	}
}

// DeleteHandler は DELETE /books/:id のハンドラーを返します。
func DeleteHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		if err := svc.DeleteBook(c.Request.Context(), id); err != nil {
			respondWithError(c, err, "Failed to delete book.")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Book Deleted!"})
	}
}

// parseID は :id を整数として読み取ります。失敗時は 400 を書き込んで false を返します。
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_INPUT",
			"error": "id は整数で指定してください",
		})
		return 0, false
	}
	return id, true
}
