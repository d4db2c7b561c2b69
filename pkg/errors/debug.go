package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres SQLSTATE values the ledger cares about when diagnosing failures.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
	PGHint       string `json:"pg_hint,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	dump := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		dump.Code = typed.Code()
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		dump.Chain = append(dump.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}

	switch {
	case fillFromPgx(err, &dump), fillFromPq(err, &dump):
		dump.PGHint = pgHint(dump.PGCode)
	}
	return dump
}

// Fields renders the dump as logger fields, omitting empty Postgres data.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.PGCode == "" {
		return fields
	}
	fields["pg_code"] = d.PGCode
	fields["pg_message"] = d.PGMessage
	for key, value := range map[string]string{
		"pg_detail":     d.PGDetail,
		"pg_table":      d.PGTable,
		"pg_column":     d.PGColumn,
		"pg_constraint": d.PGConstraint,
		"pg_hint":       d.PGHint,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func fillFromPgx(err error, dump *ErrorDump) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	dump.PGCode = pgErr.Code
	dump.PGConstraint = pgErr.ConstraintName
	dump.PGTable = pgErr.TableName
	dump.PGColumn = pgErr.ColumnName
	dump.PGDetail = pgErr.Detail
	dump.PGMessage = pgErr.Message
	return true
}

func fillFromPq(err error, dump *ErrorDump) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	dump.PGCode = string(pqErr.Code)
	dump.PGConstraint = pqErr.Constraint
	dump.PGTable = pqErr.Table
	dump.PGColumn = pqErr.Column
	dump.PGDetail = pqErr.Detail
	dump.PGMessage = pqErr.Message
	return true
}

func pgHint(code string) string {
	switch code {
	case pgUniqueViolation:
		return "duplicate key"
	case pgCheckViolation:
		return "check constraint; a negative balance reached the database"
	case pgSerializationFailure, pgDeadlockDetected:
		return "transaction conflict; retryable"
	default:
		return ""
	}
}
