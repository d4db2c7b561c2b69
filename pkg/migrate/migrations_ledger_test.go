package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/quillcoach/credits-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_accounts_and_credit_transactions")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS accounts",
		"CREATE TABLE IF NOT EXISTS credit_transactions",
		"CHECK (credits >= 0)",
		"CHECK (amount <> 0)",
		"CHECK (balance_after >= 0)",
		"ON credit_transactions (account_id, sequence)",
		"BEFORE UPDATE OR DELETE ON credit_transactions",
		"DROP TABLE IF EXISTS credit_transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWebhookDedupMigrationKeysOnEventID(t *testing.T) {
	content := readMigration(t, "create_processed_webhook_events")
	if !strings.Contains(content, "event_id text PRIMARY KEY") {
		t.Fatalf("processed_webhook_events must be keyed by event id")
	}
}

func TestBundledMigrationsAreValid(t *testing.T) {
	source, err := migrate.Source("")
	require.NoError(t, err)
	require.NoError(t, migrate.Validate(source))

	names, err := fs.Glob(source, "*.sql")
	require.NoError(t, err)
	assert.Len(t, names, 6)
}

func TestCreateWritesValidTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Trainer Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260402093000_add_trainer_notes.sql"), path)
	require.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.Create(dir, "add trainer notes", now)
	require.Error(t, err, "same version must not be overwritten")

	_, err = migrate.Create(dir, "!!!", now)
	require.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20260101000000_ok.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	write("20260101000000_dup.sql", "-- +goose Up\n-- +goose Down\n")
	write("bad-name.sql", "")
	write("20260102000000_no_down.sql", "-- +goose Up\n-- +goose StatementBegin\n")

	err := migrate.Validate(os.DirFS(dir))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260105090000")
	require.NoError(t, err)
	assert.Equal(t, int64(20260105090000), v)

	for _, raw := range []string{"", "2026", "20261399000000", "abcdefghijklmn"} {
		_, err := migrate.ParseVersion(raw)
		assert.Error(t, err, raw)
	}
}
