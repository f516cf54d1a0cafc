// Package middleware はルーター全体に掛ける共通ミドルウェアを提供します。
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader はリクエストIDをやり取りするヘッダー名です。
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request.id"
)

// RequestID はリクエストごとに ID を割り当て、レスポンスヘッダーとコンテキストに設定します。
// クライアントが UUID 形式の ID を送ってきた場合はそれを引き継ぎます。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom はコンテキストに保存されたリクエストIDを返します。未設定なら "-" です。
func RequestIDFrom(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return "-"
}
