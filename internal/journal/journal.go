// Package journal 保存 keeper 提交过的交易流水，供运维排查使用。
// 流水只写不读，keeper 的决策从不依赖这里的数据。
package journal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity 是内存流水保留的最大条数。
const DefaultCapacity = 512

// Entry 是一条交易流水。
type Entry struct {
	ID          string `json:"id"`
	Round       uint64 `json:"round"`
	Action      string `json:"action"`
	Amount      string `json:"amount,omitempty"`
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Store 定义流水存储。
type Store interface {
	Record(ctx context.Context, entry *Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Prepare 为缺失 ID 与时间戳的流水补齐字段。
func Prepare(entry *Entry) {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}
}
