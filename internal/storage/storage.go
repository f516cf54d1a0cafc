// Package storage は SQLite を使った永続化レイヤーを提供します。
//
// books と users の2テーブルを扱い、各操作は単一の SQL 文（更新のみ読み取りと書き込みの
// 2文を1トランザクション）で完結します。メモリ上のキャッシュは持ちません。
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound は対象の書籍が存在しないことを表します。
	ErrNotFound = errors.New("storage: not found")
	// ErrUserExists は同じメールアドレスのユーザーが既に登録済みであることを表します。
	ErrUserExists = errors.New("storage: user already exists")
)

// Store は SQLite 接続をまとめたリポジトリです。
type Store struct {
	db *sql.DB
}

// Open は dbPath の SQLite ファイルを開き（無ければ作成し）、テーブルを用意します。
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// 書き込みの競合はエンジン側のロックと busy_timeout で直列化する
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close は DB 接続を閉じます。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping は DB に到達できるかを確認します。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            author TEXT NOT NULL,
            price REAL NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            email TEXT PRIMARY KEY,
            password TEXT NOT NULL
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
