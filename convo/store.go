// Package convo tracks per-thread conversation state for the bot: the
// last answer sent in a thread, the consecutive-fallback counter that
// drives escalation, and the last active thread per (channel, user).
package convo

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// FreshWindow bounds how long a (channel, user) pair keeps pulling new
// top-level mentions into its previous thread.
const FreshWindow = 10 * time.Minute

// escalateAfter is the number of consecutive fallbacks that triggers
// the one-time human handoff.
const escalateAfter = 3

const (
	defaultMaxThreads = 4096
	defaultTTL        = 12 * time.Hour
)

type threadState struct {
	LastAnswer    string
	FallbackCount int
	Escalated     bool
}

type lastThread struct {
	ThreadID  string
	UpdatedAt time.Time
}

type Options struct {
	// MaxThreads caps both maps; least recently used entries are
	// evicted beyond it. Zero means the default cap.
	MaxThreads int
	// TTL evicts entries untouched for this long. Zero means the
	// default. This bounds memory for a long-running process; the
	// 10-minute freshness check is separate and stricter.
	TTL time.Duration
}

// Store holds all mutable conversation state. Events may be handled on
// concurrent goroutines, so every read-modify-write runs under one
// mutex to keep counter increments and freshness checks atomic.
type Store struct {
	mu          sync.Mutex
	threads     *expirable.LRU[string, threadState]
	lastThreads *expirable.LRU[string, lastThread]
}

func NewStore(opts Options) *Store {
	size := opts.MaxThreads
	if size <= 0 {
		size = defaultMaxThreads
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		threads:     expirable.NewLRU[string, threadState](size, nil, ttl),
		lastThreads: expirable.NewLRU[string, lastThread](size, nil, ttl),
	}
}

// ResolveThreadID picks the thread an incoming mention belongs to.
// An explicit reply wins; otherwise a fresh last-active thread for the
// same (channel, user) is reused; otherwise the mention's own ts
// anchors a new thread. Must run before the backend call so the right
// previous answer is sent as context.
func (s *Store) ResolveThreadID(channel, user, explicitThreadTS, messageTS string, now time.Time) string {
	if ts := strings.TrimSpace(explicitThreadTS); ts != "" {
		return ts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastThreads.Get(channelUserKey(channel, user)); ok {
		if last.ThreadID != "" && now.Sub(last.UpdatedAt) < FreshWindow {
			return last.ThreadID
		}
	}
	return strings.TrimSpace(messageTS)
}

// TouchThread records threadID as the last active thread for the
// (channel, user) pair.
func (s *Store) TouchThread(channel, user, threadID string, now time.Time) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastThreads.Add(channelUserKey(channel, user), lastThread{ThreadID: threadID, UpdatedAt: now})
}

// LastAnswer returns the raw answer last stored for the thread, or "".
func (s *Store) LastAnswer(threadID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := s.threads.Get(strings.TrimSpace(threadID))
	return st.LastAnswer
}

// RememberAnswer stores the raw (pre-shaping) answer for the thread.
func (s *Store) RememberAnswer(threadID, raw string) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" || raw == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := s.threads.Get(threadID)
	st.LastAnswer = raw
	s.threads.Add(threadID, st)
}

// RecordFallback bumps the thread's consecutive-fallback counter and
// reports the new count plus whether this exact call crossed the
// escalation threshold. Escalation fires at most once per thread; the
// counter keeps counting afterwards but escalatedNow stays false.
func (s *Store) RecordFallback(threadID string) (count int, escalatedNow bool) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := s.threads.Get(threadID)
	st.FallbackCount++
	if st.FallbackCount >= escalateAfter && !st.Escalated {
		st.Escalated = true
		escalatedNow = true
	}
	s.threads.Add(threadID, st)
	return st.FallbackCount, escalatedNow
}

// ResetFallbacks zeroes the counter on a non-fallback answer. An
// already-escalated thread stays escalated.
func (s *Store) ResetFallbacks(threadID string) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := s.threads.Get(threadID)
	st.FallbackCount = 0
	s.threads.Add(threadID, st)
}

// Escalated reports whether the thread already received the handoff.
func (s *Store) Escalated(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := s.threads.Get(strings.TrimSpace(threadID))
	return st.Escalated
}

func channelUserKey(channel, user string) string {
	return strings.TrimSpace(channel) + ":" + strings.TrimSpace(user)
}
