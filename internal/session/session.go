package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"github.com/sendrec/chaptersync/internal/cart"
	"github.com/sendrec/chaptersync/internal/chapter"
	"github.com/sendrec/chaptersync/internal/database"
	"github.com/sendrec/chaptersync/internal/playback"
)

var ErrNotFound = errors.New("session not found")

// GeoLookup resolves a client IP to a country code and city.
type GeoLookup interface {
	Lookup(ip string) (country, city string)
}

// Meta describes the client that opened a session.
type Meta struct {
	IP        string
	UserAgent string
}

// Session is one viewer's page: their playhead, synchronizer and cart.
type Session struct {
	ID        string
	Player    *playback.ClockPlayer
	Sync      *playback.Synchronizer
	Cart      *cart.Cart
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch marks the session as in use.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type Config struct {
	MediaID      string
	Index        *chapter.Index
	Catalog      *cart.Catalog
	NewActivator func() playback.Activator
	Secret       string
	TokenTTL     time.Duration
	PollInterval time.Duration
	DB           database.DBTX
	Geo          GeoLookup
}

// Manager owns every live session. Each session's synchronizer is stopped
// when the session is closed.
type Manager struct {
	cfg    Config
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg Config) *Manager {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = TokenDuration
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session and returns it with its signed token.
func (m *Manager) Create(ctx context.Context, meta Meta) (*Session, string, error) {
	id := uuid.NewString()
	token, err := GenerateToken(m.cfg.Secret, id, m.cfg.MediaID, m.cfg.TokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("sign session token: %w", err)
	}

	if err := m.record(ctx, id, meta); err != nil {
		return nil, "", err
	}

	now := m.now()
	s := &Session{
		ID:        id,
		Player:    playback.NewClockPlayer(nil),
		Cart:      cart.New(m.cfg.Catalog),
		CreatedAt: now,
		lastSeen:  now,
	}
	s.Sync = playback.New(m.cfg.Index, m.cfg.NewActivator(), playback.Options{
		PollInterval: m.cfg.PollInterval,
		Logger:       slog.Default().With("session_id", id),
	})

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	slog.Info("session: created", "session_id", id)
	return s, token, nil
}

func (m *Manager) record(ctx context.Context, id string, meta Meta) error {
	if m.cfg.DB == nil {
		return nil
	}

	var country, city string
	if m.cfg.Geo != nil {
		country, city = m.cfg.Geo.Lookup(meta.IP)
	}
	ua := useragent.New(meta.UserAgent)
	browser, _ := ua.Browser()
	if ua.Bot() {
		browser = "bot"
	}

	if _, err := m.cfg.DB.Exec(ctx,
		`INSERT INTO playback_sessions (id, media_id, country, city, browser, os)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, m.cfg.MediaID, country, city, browser, ua.OS(),
	); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Ready attaches the session's playhead and arms its poll loop.
func (m *Manager) Ready(s *Session) error {
	return s.Sync.Ready(m.ctx, s.Player)
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Authenticate validates a session token and returns its live session.
func (m *Manager) Authenticate(token string) (*Session, error) {
	claims, err := ValidateToken(m.cfg.Secret, token)
	if err != nil {
		return nil, err
	}
	s, err := m.Get(claims.SessionID)
	if err != nil {
		return nil, err
	}
	s.Touch(m.now())
	return s, nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the session's synchronizer and forgets it.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.Sync.Stop()
	slog.Info("session: closed", "session_id", id, "duration", m.now().Sub(s.CreatedAt).Round(time.Second))

	if m.cfg.DB != nil {
		if _, err := m.cfg.DB.Exec(ctx,
			`UPDATE playback_sessions SET ended_at = now() WHERE id = $1`,
			id,
		); err != nil {
			slog.Error("session: failed to mark ended", "session_id", id, "error", err)
		}
	}
	return nil
}

// CloseIdle closes sessions not seen within ttl and returns how many it closed.
func (m *Manager) CloseIdle(ctx context.Context, ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, id := range idle {
		if err := m.Close(ctx, id); err == nil {
			closed++
		}
	}
	return closed
}

// CloseAll closes every session and stops all poll loops.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Close(ctx, id)
	}
	m.cancel()
}

func (m *Manager) StartReaper(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("session-reaper: shutting down")
				return
			case <-ticker.C:
				if n := m.CloseIdle(ctx, ttl); n > 0 {
					slog.Info("session-reaper: closed idle sessions", "count", n, "remaining", m.Len())
				}
			}
		}
	}()
}
