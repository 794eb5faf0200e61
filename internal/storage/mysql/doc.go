// Package mysql 提供基于 MySQL 的交易流水存储，负责连接池配置与内嵌 SQL 迁移。
package mysql
