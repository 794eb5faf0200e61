package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"

	xerrors "OrchKeeper/internal/errors"
	"OrchKeeper/internal/journal"

	"github.com/go-sql-driver/mysql"
)

const insertEntrySQL = `INSERT INTO keeper_transactions
    (id, round_number, action, amount_wei, status, tx_hash, block_number, gas_used, error_code, error_message, dry_run, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const listRecentSQL = `SELECT id, round_number, action, amount_wei, status, tx_hash, block_number, gas_used, error_code, error_message, dry_run, created_at
    FROM keeper_transactions ORDER BY created_at DESC, id DESC LIMIT ?`

// JournalStore 把交易流水写入 keeper_transactions 表。
type JournalStore struct {
	db *sql.DB
}

// NewJournalStore 建立连接池并执行内嵌迁移。
func NewJournalStore(ctx context.Context, cfg Config) (*JournalStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开流水数据库失败")
	}
	store := &JournalStore{db: db}
	if err := migrate(ctx, db, embeddedMigrations); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 keeper_transactions 表失败")
	}
	return store, nil
}

// Record 实现 journal.Store 接口。重复 ID 视为已写入。
func (s *JournalStore) Record(ctx context.Context, entry *journal.Entry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "entry 不能为空")
	}
	journal.Prepare(entry)

	_, err := s.db.ExecContext(ctx, insertEntrySQL,
		entry.ID,
		entry.Round,
		entry.Action,
		entry.Amount,
		entry.Status,
		entry.TxHash,
		entry.BlockNumber,
		entry.GasUsed,
		entry.ErrorCode,
		entry.Error,
		entry.DryRun,
		entry.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入交易流水失败")
	}
	return nil
}

// ListRecent 按时间倒序返回最近的流水。
func (s *JournalStore) ListRecent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = journal.DefaultCapacity
	}
	rows, err := s.db.QueryContext(ctx, listRecentSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易流水失败")
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var (
			entry   journal.Entry
			message sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Round,
			&entry.Action,
			&entry.Amount,
			&entry.Status,
			&entry.TxHash,
			&entry.BlockNumber,
			&entry.GasUsed,
			&entry.ErrorCode,
			&message,
			&entry.DryRun,
			&entry.CreatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析交易流水失败")
		}
		entry.Error = message.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历交易流水失败")
	}
	return entries, nil
}

// Close 关闭连接池。
func (s *JournalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ journal.Store = (*JournalStore)(nil)
