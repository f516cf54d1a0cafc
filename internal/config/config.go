// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	JWTSecret string // セッショントークン署名用の秘密鍵（必須）

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabasePath string // SQLiteファイルのパス

	// ジョブ/キュー設定
	QueueRedisURL            string // Asynq用Redis接続URL（空ならインポートは常に同期処理）
	JobExpireMinutes         int    // ジョブ情報の有効期限（分）
	AsyncImportThresholdRows int    // 同期処理から非同期へ切り替える行数の閾値

	// インポート制限
	MaxImportSize int64 // インポートファイルの最大サイズ（バイト）

	// レート制限（0 で無効）
	RateLimitRPS   int
	RateLimitBurst int
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		JWTSecret: getEnv("JWT_SECRET", ""),

		Port:    getEnv("PORT", "3000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		DatabasePath: getEnv("DATABASE_PATH", "mydb.sqlite"),

		QueueRedisURL:            getEnv("QUEUE_REDIS_URL", ""),
		JobExpireMinutes:         getEnvAsInt("JOB_EXPIRE_MINUTES", 10),
		AsyncImportThresholdRows: getEnvAsInt("ASYNC_IMPORT_THRESHOLD_ROWS", 500),

		MaxImportSize: getEnvAsInt64("MAX_IMPORT_SIZE", 5*1024*1024), // 5MB

		RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
// 署名鍵が空のままだと誰でもトークンを偽造できるため、モードに関係なくエラーにします。
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	if c.MaxImportSize <= 0 {
		return fmt.Errorf("MAX_IMPORT_SIZE must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}

// SecureCookies はクッキーに Secure 属性を付けるべきかを返します。
func (c *Config) SecureCookies() bool {
	return c.GinMode == "release"
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
