// Package auth は認証・認可機能を提供します。
//
// パスワードは argon2id でハッシュ化して保存し、ログインに成功すると
// メールアドレスを含む署名付きトークンを HttpOnly クッキー "auth" として発行します。
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/bookstore-api/internal/config"
	"github.com/yourusername/bookstore-api/internal/storage"
)

const (
	// CookieName はセッショントークンを運ぶクッキー名です。
	CookieName = "auth"

	// ContextUserKey は、ハンドラー間でログイン済みユーザーのメールアドレスを共有するためのキーです。
	ContextUserKey = "auth.user"
)

var (
	sessionLifetime  = 7 * 24 * time.Hour
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

var (
	// ErrUserNotFound はメールアドレスに一致するユーザーがいないことを表します。
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidPassword はパスワードが一致しないことを表します。
	ErrInvalidPassword = errors.New("auth: invalid password")
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(sessionLifetime.Seconds())
}

// UserStore は Manager が必要とするユーザー永続化の操作です。
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) error
	FindUser(ctx context.Context, email string) (*storage.User, error)
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	users  UserStore
	tokens *Tokens
	params HashParams
	secure bool

	dummyOnce sync.Once
	dummyHash string

	lock      sync.Mutex
	attempts  map[string]*attemptState
	lastSweep time.Time
	now       func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, users UserStore) *Manager {
	return &Manager{
		users:    users,
		tokens:   NewTokens(cfg.JWTSecret, sessionLifetime),
		params:   DefaultHashParams,
		secure:   cfg.SecureCookies(),
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

// Tokens はトークンの発行・検証器を返します。
func (m *Manager) Tokens() *Tokens {
	return m.tokens
}

// CreateUser はパスワードをハッシュ化してからユーザーを登録します。
func (m *Manager) CreateUser(ctx context.Context, email, password string) error {
	hash, err := hashPassword(password, m.params)
	if err != nil {
		return err
	}
	if err := m.users.CreateUser(ctx, email, hash); err != nil {
		return err
	}
	return nil
}

// Authenticate はメールアドレスとパスワードを検証し、一致したユーザーを返します。
// ユーザーが存在しない場合もダミーのハッシュと比較し、応答時間を揃えます。
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*storage.User, error) {
	user, err := m.users.FindUser(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		_, _ = VerifyPassword(password, m.dummy())
		return nil, ErrUserNotFound
	}

	ok, err := VerifyPassword(password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password for %s: %w", email, err)
	}
	if !ok {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

func (m *Manager) dummy() string {
	m.dummyOnce.Do(func() {
		hash, err := hashPassword("dummy-password", m.params)
		if err == nil {
			m.dummyHash = hash
		}
	})
	return m.dummyHash
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	m.sweepAttempts(now)

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	m.sweepAttempts(now)

	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// sweepAttempts は集計期間もロックも過ぎたエントリを捨てます。呼び出し側でロックを保持していること。
func (m *Manager) sweepAttempts(now time.Time) {
	if now.Sub(m.lastSweep) < loginWindow {
		return
	}
	for ip, state := range m.attempts {
		if now.Sub(state.firstAttempt) > loginWindow && now.After(state.lockedUntil) {
			delete(m.attempts, ip)
		}
	}
	m.lastSweep = now
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}
