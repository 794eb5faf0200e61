// Package events 把 keeper 的轮次变化与交易结果以 JSON 事件的形式投递给外部系统。
// 投递失败只记录日志，从不影响 keeper 的周期。
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	xerrors "OrchKeeper/internal/errors"

	"github.com/google/uuid"
)

// Kind 表示事件类型。
type Kind string

const (
	KindRoundTransition Kind = "round_transition"
	KindTxOutcome       Kind = "tx_outcome"
	KindCycleFailed     Kind = "cycle_failed"
)

// Event 是投递给外部的事件文档。
type Event struct {
	ID          string           `json:"id"`
	Kind        Kind             `json:"kind"`
	Round       uint64           `json:"round"`
	Locked      bool             `json:"locked,omitempty"`
	Action      string           `json:"action,omitempty"`
	Amount      string           `json:"amount,omitempty"`
	Status      string           `json:"status,omitempty"`
	TxHash      string           `json:"tx_hash,omitempty"`
	BlockNumber uint64           `json:"block_number,omitempty"`
	GasUsed     uint64           `json:"gas_used,omitempty"`
	ErrorCode   xerrors.Code     `json:"error_code,omitempty"`
	Error       string           `json:"error,omitempty"`
	Severity    xerrors.Severity `json:"severity,omitempty"`
	Alert       bool             `json:"alert,omitempty"`
	DryRun      bool             `json:"dry_run,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// WithError 根据错误码填充错误相关字段。
func (e Event) WithError(err error) Event {
	if err == nil {
		return e
	}
	e.ErrorCode = xerrors.CodeOf(err)
	e.Error = err.Error()
	e.Severity = xerrors.SeverityOf(err)
	e.Alert = xerrors.ShouldAlert(err)
	return e
}

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

func encode(event *Event) ([]byte, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, "序列化事件失败")
	}
	return payload, nil
}

// Nop 丢弃所有事件。
type Nop struct{}

// Publish 实现 Publisher 接口。
func (Nop) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher 接口。
func (Nop) Close() error { return nil }

// Memory 在内存中保存事件，主要用于测试与 dry-run。
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory 创建内存发布器。
func NewMemory() *Memory {
	return &Memory{}
}

// Publish 实现 Publisher 接口。
func (m *Memory) Publish(_ context.Context, event Event) error {
	if _, err := encode(&event); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events 返回已投递事件的副本。
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Close 实现 Publisher 接口。
func (m *Memory) Close() error { return nil }

// Fanout 把事件投递给多个发布器，任何一个失败都不会阻止其余发布器。
type Fanout struct {
	publishers []Publisher
}

// NewFanout 创建 Fanout，忽略 nil。
func NewFanout(publishers ...Publisher) *Fanout {
	f := &Fanout{}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Publish 实现 Publisher 接口。
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	if _, err := encode(&event); err != nil {
		return err
	}
	var errs []error
	for idx, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", idx, err))
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrap(xerrors.CodePublishFailure, errors.Join(errs...), "")
	}
	return nil
}

// Close 关闭所有发布器。
func (f *Fanout) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
