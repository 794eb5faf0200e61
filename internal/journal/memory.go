package journal

import (
	"context"
	"sync"

	xerrors "OrchKeeper/internal/errors"
)

// MemoryStore 在内存中保留最近的流水，超出容量时丢弃最旧的记录。
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewMemoryStore 创建 MemoryStore，capacity 非正数时使用 DefaultCapacity。
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Record 实现 Store 接口。
func (m *MemoryStore) Record(_ context.Context, entry *Entry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "entry 不能为空")
	}
	Prepare(entry)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]Entry{*entry}, m.entries...)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[:m.capacity]
	}
	return nil
}

// ListRecent 按时间倒序返回最近的流水。
func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	results := make([]Entry, limit)
	copy(results, m.entries[:limit])
	return results, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }
