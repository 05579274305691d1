package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/room4-2/ada/config"
	"github.com/room4-2/ada/logger"
)

const (
	activeSessionsKey = "active_sessions"
	sessionKeyPrefix  = "session:"
	redisOpTimeout    = 2 * time.Second
)

// ErrSessionExists is returned when a client already owns a session.
var ErrSessionExists = errors.New("client already has a session")

// Info is a point-in-time view of a managed session.
type Info struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Paused       bool      `json:"paused"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

type managed struct {
	session   *Session
	createdAt time.Time
	lastSeen  atomic.Int64 // unix nanos
}

func (e *managed) touch() {
	e.lastSeen.Store(time.Now().UnixNano())
}

func (e *managed) lastActivity() time.Time {
	return time.Unix(0, e.lastSeen.Load())
}

// Manager keeps at most one Session per UI client and mirrors their status to
// Redis when it is reachable.
type Manager struct {
	sessions map[string]*managed
	mu       sync.RWMutex
	redis    *redis.Client
	ttl      time.Duration
}

// NewManager creates a session manager with Redis connection
func NewManager(cfg *config.Config) *Manager {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("⚠️ Redis unavailable, session mirror disabled", "addr", cfg.RedisURL, "error", err)
		_ = redisClient.Close()
		redisClient = nil
	}

	return NewManagerWithRedis(redisClient, cfg.SessionTimeout)
}

// NewManagerWithRedis creates a manager around an existing client. A nil
// client disables the mirror.
func NewManagerWithRedis(client *redis.Client, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*managed),
		redis:    client,
		ttl:      ttl,
	}
}

// Create builds a session for clientID. The session's status notifications
// are mirrored before being forwarded to cfg.Callbacks.OnStatus, and its
// conversation traffic counts as activity for the idle reaper.
func (m *Manager) Create(ctx context.Context, clientID string, cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[clientID]; exists {
		return nil, ErrSessionExists
	}

	now := time.Now()
	entry := &managed{createdAt: now}
	entry.touch()

	cfg.ID = clientID
	forward := cfg.Callbacks.OnStatus
	cfg.Callbacks.OnStatus = func(st Status) {
		m.mirrorState(clientID, st.State)
		if forward != nil {
			forward(st)
		}
	}
	onAudio := cfg.Callbacks.OnAudioOut
	cfg.Callbacks.OnAudioOut = func(pcm []byte) {
		entry.touch()
		if onAudio != nil {
			onAudio(pcm)
		}
	}
	onTranscript := cfg.Callbacks.OnTranscription
	cfg.Callbacks.OnTranscription = func(t Transcription) {
		entry.touch()
		if onTranscript != nil {
			onTranscript(t)
		}
	}

	s, err := New(cfg)
	if err != nil {
		return nil, err
	}

	entry.session = s
	m.sessions[clientID] = entry

	if m.redis != nil {
		m.redis.HSet(ctx, sessionKeyPrefix+clientID, map[string]interface{}{
			"created_at":    now.Format(time.RFC3339),
			"last_activity": now.Format(time.RFC3339),
			"status":        StateIdle.String(),
		})
		m.redis.SAdd(ctx, activeSessionsKey, clientID)
		m.redis.Expire(ctx, sessionKeyPrefix+clientID, m.ttl)
	}
	return s, nil
}

func (m *Manager) mirrorState(clientID string, st State) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := m.redis.HSet(ctx, sessionKeyPrefix+clientID, "status", st.String()).Err(); err != nil {
		logger.Debug("Redis status mirror failed", "session", logger.ShortID(clientID), "error", err)
	}
}

// Get retrieves a session by client ID
func (m *Manager) Get(clientID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.sessions[clientID]
	if !exists {
		return nil, false
	}
	return entry.session, true
}

// Touch records client activity and refreshes the mirror's expiry.
func (m *Manager) Touch(ctx context.Context, clientID string) {
	m.mu.Lock()
	entry, exists := m.sessions[clientID]
	if exists {
		entry.touch()
	}
	m.mu.Unlock()

	if !exists || m.redis == nil {
		return
	}
	m.redis.HSet(ctx, sessionKeyPrefix+clientID, "last_activity", time.Now().Format(time.RFC3339))
	m.redis.Expire(ctx, sessionKeyPrefix+clientID, m.ttl)
}

// Remove stops and forgets the client's session.
func (m *Manager) Remove(ctx context.Context, clientID string) error {
	m.mu.Lock()
	entry, exists := m.sessions[clientID]
	delete(m.sessions, clientID)
	m.mu.Unlock()

	if !exists {
		return nil
	}

	err := entry.session.Stop()
	m.forget(ctx, clientID)
	return err
}

func (m *Manager) forget(ctx context.Context, clientID string) {
	if m.redis == nil {
		return
	}
	m.redis.Del(ctx, sessionKeyPrefix+clientID)
	m.redis.SRem(ctx, activeSessionsKey, clientID)
}

// Redis returns the mirror's client, nil when Redis is unavailable.
func (m *Manager) Redis() *redis.Client {
	return m.redis
}

// Count returns current session count
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns every managed session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for id, entry := range m.sessions {
		infos = append(infos, Info{
			ID:           id,
			State:        entry.session.State().String(),
			Paused:       entry.session.Paused(),
			CreatedAt:    entry.createdAt,
			LastActivity: entry.lastActivity(),
		})
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// CleanupInactiveSessions removes sessions that have been inactive
func (m *Manager) CleanupInactiveSessions(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var stale []*managed
	var ids []string
	for id, entry := range m.sessions {
		if now.Sub(entry.lastActivity()) > m.ttl {
			stale = append(stale, entry)
			ids = append(ids, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for i, entry := range stale {
		logger.Info("🧹 Removing inactive session", "session", logger.ShortID(ids[i]))
		_ = entry.session.Stop()
		m.forget(ctx, ids[i])
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown stops all sessions
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	entries := m.sessions
	m.sessions = make(map[string]*managed)
	m.mu.Unlock()

	for id, entry := range entries {
		_ = entry.session.Stop()
		m.forget(ctx, id)
	}

	if m.redis != nil {
		_ = m.redis.Close()
	}
}
