// Package status watcher 运行状态存储
//
// watcher 在后台运行，调用方拿不到返回值，运行进度与结果只能从这里查询。
package status

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"nni-keeper/internal/model"
)

var ErrNotFound = errors.New("watch status not found")

// Store 状态存储接口
type Store interface {
	Save(ctx context.Context, st model.WatchStatus) error
	Get(ctx context.Context, runID string) (*model.WatchStatus, error)
	List(ctx context.Context) ([]model.WatchStatus, error)
}

// MemoryStore 进程内状态存储
// ttl > 0 时已结束的 watcher 在最后一次写入 ttl 之后过期，与 Redis 存储的 TTL 一致；运行中的不过期
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

type memoryItem struct {
	st      model.WatchStatus
	savedAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *MemoryStore) expired(it memoryItem, now time.Time) bool {
	return m.ttl > 0 && it.st.FinishedAt != nil && now.Sub(it.savedAt) > m.ttl
}

// Save 顺带清理过期记录
func (m *MemoryStore) Save(_ context.Context, st model.WatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, it := range m.items {
		if m.expired(it, now) {
			delete(m.items, id)
		}
	}
	m.items[st.RunID] = memoryItem{st: st, savedAt: now}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, runID string) (*model.WatchStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[runID]
	if !ok || m.expired(it, m.now()) {
		return nil, ErrNotFound
	}
	st := it.st
	return &st, nil
}

func (m *MemoryStore) List(_ context.Context) ([]model.WatchStatus, error) {
	now := m.now()
	m.mu.RLock()
	out := make([]model.WatchStatus, 0, len(m.items))
	for _, it := range m.items {
		if !m.expired(it, now) {
			out = append(out, it.st)
		}
	}
	m.mu.RUnlock()

	sortByStart(out)
	return out, nil
}

// size 含尚未清理的过期记录
func (m *MemoryStore) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func sortByStart(items []model.WatchStatus) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].RunID < items[j].RunID
		}
		return items[i].StartedAt.Before(items[j].StartedAt)
	})
}
