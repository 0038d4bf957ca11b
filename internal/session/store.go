// Package session implements the Session Store: per-chat,
// per-provider session identity with freshness rules, atomic JSON
// persistence, and serialized mutation.
package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/calendar"
	"github.com/nevindra/ductor/internal/clock"
)

// FreshnessConfig bounds how long a session stays resumable.
type FreshnessConfig struct {
	MaxMessages      int           // 0 = unlimited
	IdleTimeout      time.Duration // 0 = disabled
	DailyResetHour   int           // -1 = disabled
	DailyResetMinute int
	Timezone         *time.Location
}

// legacySession is the pre-multi-provider on-disk shape, accepted on
// load and migrated into ProviderSessions[provider].
type legacySession struct {
	ChatID       string  `json:"chat_id"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	SessionID    string  `json:"session_id"`
	MessageCount int     `json:"message_count"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalTokens  int64   `json:"total_tokens"`
	CreatedAt    int64   `json:"created_at"`
	LastActive   int64   `json:"last_active"`
}

// Store persists the entire chat_id -> Session map as one JSON file,
// guarded by a single process-wide lock for all mutations.
type Store struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*ductor.Session
	fresh    FreshnessConfig
	clock    clock.Clock
	logger   *slog.Logger
}

func New(path string, fresh FreshnessConfig, c clock.Clock, logger *slog.Logger) *Store {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, fresh: fresh, clock: c, logger: logger, sessions: make(map[string]*ductor.Session)}
	s.load()
	return s
}

// load reads the sessions file. Corrupt or unparseable files are
// logged and treated as empty, never crash.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("session store: read failed, starting empty", "err", err)
		}
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("session store: corrupt file, starting empty", "err", err)
		return
	}

	sessions := make(map[string]*ductor.Session, len(raw))
	for chatID, msg := range raw {
		var sess ductor.Session
		if err := json.Unmarshal(msg, &sess); err == nil && sess.ProviderSessions != nil {
			sess.ChatID = chatID
			sessions[chatID] = &sess
			continue
		}
		var legacy legacySession
		if err := json.Unmarshal(msg, &legacy); err != nil {
			s.logger.Warn("session store: skipping unparseable entry", "chat_id", chatID, "err", err)
			continue
		}
		sess = ductor.Session{
			ChatID:           chatID,
			Provider:         legacy.Provider,
			Model:            legacy.Model,
			CreatedAt:        legacy.CreatedAt,
			LastActive:       legacy.LastActive,
			ProviderSessions: map[string]*ductor.ProviderSession{
				legacy.Provider: {
					SessionID:    legacy.SessionID,
					MessageCount: legacy.MessageCount,
					TotalCostUSD: legacy.TotalCostUSD,
					TotalTokens:  legacy.TotalTokens,
				},
			},
		}
		sessions[chatID] = &sess
	}
	s.sessions = sessions
}

// persist writes the current map to path.tmp then atomically renames
// it to path.
func (s *Store) persist() {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		s.logger.Error("session store: marshal failed", "err", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Error("session store: mkdir failed", "err", err)
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("session store: write temp failed", "err", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("session store: rename failed", "err", err)
	}
}

// IsFresh implements spec §4.5's is_fresh.
func (s *Store) IsFresh(sess *ductor.Session) bool {
	active := sess.Active()
	if s.fresh.MaxMessages > 0 && active.MessageCount >= s.fresh.MaxMessages {
		return false
	}
	if s.fresh.IdleTimeout > 0 {
		now := s.clock.Now()
		lastActive := time.Unix(sess.LastActive, 0)
		if now.Sub(lastActive) >= s.fresh.IdleTimeout {
			return false
		}
	}
	if s.fresh.DailyResetHour >= 0 {
		loc := s.fresh.Timezone
		if loc == nil {
			loc = time.UTC
		}
		now := s.clock.Now().In(loc)
		todayDays := calendar.DateToUnixDays(now.Year(), int(now.Month()), now.Day())
		todayReset := time.Date(1970, 1, 1, s.fresh.DailyResetHour, s.fresh.DailyResetMinute, 0, 0, loc).
			AddDate(0, 0, int(todayDays))
		lastActive := time.Unix(sess.LastActive, 0).In(loc)
		if !now.Before(todayReset) {
			if lastActive.Before(todayReset) {
				return false
			}
		} else {
			yy, mm, dd := calendar.UnixDaysToDate(todayDays - 1)
			yesterdayReset := time.Date(yy, time.Month(mm), dd, s.fresh.DailyResetHour, s.fresh.DailyResetMinute, 0, 0, loc)
			if lastActive.Before(yesterdayReset) {
				return false
			}
		}
	}
	return true
}

// ResolveSession implements spec §4.5's resolve_session.
func (s *Store) ResolveSession(chatID, provider, model string) (*ductor.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if ok && s.IsFresh(sess) {
		if sess.Provider != provider {
			if sess.ProviderSessions == nil {
				sess.ProviderSessions = make(map[string]*ductor.ProviderSession)
			}
			sess.ProviderSessions[provider] = &ductor.ProviderSession{}
			sess.Provider = provider
			sess.Model = model
			s.persist()
			return sess, true
		}
		if sess.Model != model {
			sess.Model = model
			s.persist()
		}
		if sess.Active().IsEmpty() {
			return sess, true
		}
		return sess, false
	}

	fresh := &ductor.Session{
		ChatID:           chatID,
		Provider:         provider,
		Model:            model,
		ProviderSessions: map[string]*ductor.ProviderSession{provider: {}},
		CreatedAt:        ductor.NowUnix(),
		LastActive:       ductor.NowUnix(),
	}
	s.sessions[chatID] = fresh
	s.persist()
	return fresh, true
}

// UpdateSession implements spec §4.5's update_session: serialized
// under the store lock, re-reads current disk state, applies the
// caller's identity fields but preserves counters, then increments.
func (s *Store) UpdateSession(sess *ductor.Session, costUSD float64, tokens int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[sess.ChatID]
	if !ok {
		current = sess
		s.sessions[sess.ChatID] = current
	}
	current.Provider = sess.Provider
	current.Model = sess.Model

	active := current.Active()
	incoming := sess.Active()
	if incoming.SessionID != "" {
		active.SessionID = incoming.SessionID
	}
	active.MessageCount++
	active.TotalCostUSD += costUSD
	active.TotalTokens += tokens
	current.LastActive = ductor.NowUnix()

	s.persist()

	// Write aggregated counters back onto the caller's reference.
	*sess = *current
}

// ResetSession implements spec §4.5's reset_session: replaces with a
// fresh Session keyed to the requested provider/model.
func (s *Store) ResetSession(chatID, provider, model string) *ductor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := &ductor.Session{
		ChatID:           chatID,
		Provider:         provider,
		Model:            model,
		ProviderSessions: map[string]*ductor.ProviderSession{provider: {}},
		CreatedAt:        ductor.NowUnix(),
		LastActive:       ductor.NowUnix(),
	}
	s.sessions[chatID] = fresh
	s.persist()
	return fresh
}

// ResetProviderSession clears only the named provider's slot.
func (s *Store) ResetProviderSession(chatID, provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return
	}
	if sess.ProviderSessions == nil {
		sess.ProviderSessions = make(map[string]*ductor.ProviderSession)
	}
	sess.ProviderSessions[provider] = &ductor.ProviderSession{}
	s.persist()
}

// SyncSessionTarget persists a provider/model change without
// touching counters.
func (s *Store) SyncSessionTarget(chatID, provider, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return
	}
	sess.Provider = provider
	sess.Model = model
	s.persist()
}

// Get returns the stored session for chatID without creating one.
func (s *Store) Get(chatID string) (*ductor.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	return sess, ok
}
