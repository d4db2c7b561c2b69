// Package dbtest opens throwaway SQLite databases carrying the ledger schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  trainer_id TEXT,
  display_name TEXT NOT NULL DEFAULT '',
  credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
  version INTEGER NOT NULL DEFAULT 0,
  current_plan_id TEXT,
  current_plan_name TEXT,
  current_plan_assigned_at DATETIME,
  last_entry_at DATETIME,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS credit_transactions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  type TEXT NOT NULL,
  amount INTEGER NOT NULL CHECK (amount <> 0),
  description TEXT NOT NULL,
  balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
  trainer_id TEXT,
  student_id TEXT,
  plan_id TEXT,
  plan_name TEXT,
  plan_price NUMERIC,
  currency TEXT,
  source TEXT NOT NULL,
  source_ref TEXT,
  actor_id TEXT,
  created_at DATETIME NOT NULL,
  UNIQUE (account_id, sequence)
);`,
	`CREATE TABLE IF NOT EXISTS trainers (
  id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL DEFAULT '',
  ai_evaluation_cost INTEGER,
  trainer_evaluation_cost INTEGER,
  updated_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  trainer_id TEXT NOT NULL,
  name TEXT NOT NULL,
  credits INTEGER NOT NULL,
  price NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  trainer_id TEXT,
  test_name TEXT NOT NULL,
  status TEXT NOT NULL,
  evaluation_type TEXT,
  evaluation_cost INTEGER,
  evaluation_requested_at DATETIME,
  created_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  context BLOB,
  read_at DATETIME,
  created_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS processed_webhook_events (
  event_id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  event_type TEXT NOT NULL,
  account_id TEXT,
  processed_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// New returns an isolated in-memory database with every ledger table created.
// The pool is capped at one connection so concurrent transactions serialize
// instead of failing with SQLITE_BUSY.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:qc_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
