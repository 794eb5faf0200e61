package migrations

import "embed"

// Files 暴露交易流水表的 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
