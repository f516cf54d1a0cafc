package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireLogin は "auth" クッキーのトークンを検証するミドルウェアを返します。
// 検証に失敗した場合は 401 とプレーンテキストの "Unauthorized" を返して処理を打ち切ります。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		email, ok := m.tokens.Verify(token)
		if !ok {
			abortUnauthorized(c)
			return
		}

		c.Set(ContextUserKey, email)
		c.Next()
	}
}

// CurrentUser はガードを通過したリクエストのメールアドレスを返します。
func CurrentUser(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}

func abortUnauthorized(c *gin.Context) {
	c.String(http.StatusUnauthorized, "Unauthorized")
	c.Abort()
}
