package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookstore-api/internal/middleware"
	"github.com/yourusername/bookstore-api/internal/storage"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register は /register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_INPUT",
			"error": "email と password を JSON で送ってください",
		})
		return
	}

	err := m.CreateUser(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, storage.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{
			"code":  "USER_EXISTS",
			"error": "User already exists.",
		})
		return
	case err != nil:
		log.Printf("[%s] create user failed: %v", middleware.RequestIDFrom(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": "Failed to create user.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User Created!"})
}

// Login は /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_INPUT",
			"error": "email と password を JSON で送ってください",
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":  "TOO_MANY_ATTEMPTS",
			"error": "一定時間後に再度お試しください",
		})
		return
	}

	user, err := m.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var message string
		switch {
		case errors.Is(err, ErrUserNotFound):
			message = "User not found"
		case errors.Is(err, ErrInvalidPassword):
			message = "Invalid password"
		default:
			log.Printf("[%s] authenticate failed: %v", middleware.RequestIDFrom(c), err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":  "INTERNAL_ERROR",
				"error": "Failed to authenticate user.",
			})
			return
		}

		remaining := m.recordFailure(ip)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"error":             message,
			"remainingAttempts": remaining,
		})
		return
	}

	m.resetAttempts(ip)

	token, err := m.tokens.Sign(user.Email)
	if err != nil {
		log.Printf("[%s] sign token failed: %v", middleware.RequestIDFrom(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "TOKEN_GENERATION_FAILED",
			"error": "セッショントークンの発行に失敗しました",
		})
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, token, SessionMaxAgeSeconds(), "/", "", m.secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Login Success"})
}

// Logout は /logout のハンドラーです。トークン自体は失効できないため、クッキーを消すだけです。
func (m *Manager) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, "", -1, "/", "", m.secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logout Success"})
}
