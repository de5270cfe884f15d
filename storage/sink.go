// Package storage 事件日志的持久化与分发。
// 引擎只依赖 Sink 接口，事件在状态变更应用之后才会追加。
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/qianlnk/autowolf/models"
)

// Sink 追加写入的事件接收端
type Sink interface {
	Append(ctx context.Context, event models.Event) error
}

// Finisher 对局不再产生事件后释放该局资源的接收端
type Finisher interface {
	Finish(gameID string) error
}

// MultiSink 依次写入多个接收端，单个失败不影响其他
type MultiSink []Sink

// Append 写入所有接收端，返回合并后的错误
func (m MultiSink) Append(ctx context.Context, event models.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Finish 通知所有实现了 Finisher 的接收端
func (m MultiSink) Finish(gameID string) error {
	var errs []error
	for _, s := range m {
		if f, ok := s.(Finisher); ok {
			if err := f.Finish(gameID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// MemorySink 内存事件表
type MemorySink struct {
	mutex  sync.RWMutex
	events []models.Event
}

// NewMemorySink 创建内存事件表
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append 追加事件
func (m *MemorySink) Append(_ context.Context, event models.Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.events = append(m.events, event)
	return nil
}

// Events 返回全部事件副本
func (m *MemorySink) Events() []models.Event {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]models.Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByType 按类型过滤
func (m *MemorySink) ByType(t models.EventType) []models.Event {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]models.Event, 0)
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ByGame 某局的全部事件，按写入顺序
func (m *MemorySink) ByGame(_ context.Context, gameID string) ([]models.Event, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]models.Event, 0)
	for _, e := range m.events {
		if e.GameID == gameID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Games 记录过的对局 ID，按首条事件的顺序
func (m *MemorySink) Games(_ context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, e := range m.events {
		if !seen[e.GameID] {
			seen[e.GameID] = true
			ids = append(ids, e.GameID)
		}
	}
	return ids, nil
}

// EventSource 可按对局查询的事件存储
type EventSource interface {
	ByGame(ctx context.Context, gameID string) ([]models.Event, error)
	Games(ctx context.Context) ([]string, error)
}
