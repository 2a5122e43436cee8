// Package cache memoizes serialized engine results. Entries are keyed by the
// user's data version, so a write to the event store makes older entries
// unreachable instead of requiring explicit invalidation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds the cache key for an operation. params are joined in order and
// hashed so arbitrary crop names stay key-safe.
func Key(userID int64, op string, version int64, params ...any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprint(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("harvestcast:%d:%s:v%d:%s", userID, op, version, hex.EncodeToString(sum[:8]))
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process cache. A zero TTL never expires.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.entries[key] = entry{value: append([]byte(nil), value...), expires: expires}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
