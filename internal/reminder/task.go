package reminder

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Kind 提醒类型
type Kind string

const (
	KindHydration  Kind = "hydration"
	KindMedication Kind = "medication"
)

// Metadata 定时任务的可持久化部分，回调本身不落盘
// Interval > 0 为周期任务，否则为 Target 时刻的一次性任务
type Metadata struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	Ref         string        `json:"ref,omitempty"`
	Interval    time.Duration `json:"interval,omitempty"`
	Target      time.Time     `json:"target,omitempty"`
	LastTrigger time.Time     `json:"last_trigger"`
}

func (m Metadata) Recurring() bool {
	return m.Interval > 0
}

// Fire 一次触发
// Reconciled 为 true 表示是恢复时补发的，调用方拿不到触发当时的上下文，需使用占位值
type Fire struct {
	ID         string
	Kind       Kind
	Ref        string
	At         time.Time
	Reconciled bool
}

// Callback 触发回调，返回的错误只记录日志
type Callback func(ctx context.Context, f Fire) error

// MetadataStore 定时任务元数据的持久化
type MetadataStore interface {
	SaveReminder(ctx context.Context, m Metadata) error
	DeleteReminder(ctx context.Context, id string) error
	LoadReminders(ctx context.Context) ([]Metadata, error)
}

// MemoryStore 进程内实现，进程重启后丢失
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Metadata
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Metadata)}
}

func (s *MemoryStore) SaveReminder(_ context.Context, m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[m.ID] = m
	return nil
}

func (s *MemoryStore) DeleteReminder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) LoadReminders(_ context.Context) ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Metadata, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
