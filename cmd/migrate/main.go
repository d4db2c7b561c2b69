package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/quillcoach/credits-backend/internal/bootstrap"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up               apply all pending migrations
  down             roll back the newest migration
  status           list migrations and whether they are applied
  to <version>     migrate up or down to YYYYMMDDHHMMSS
  create <name>    write a new empty migration into -dir
  validate         check migration files without a database`

type command func(ctx context.Context, m *migrate.Migrator, arg string) error

var dbCommands = map[string]command{
	"up":     func(ctx context.Context, m *migrate.Migrator, _ string) error { return m.Up(ctx) },
	"down":   func(ctx context.Context, m *migrate.Migrator, _ string) error { return m.Down(ctx) },
	"status": printStatus,
	"to": func(ctx context.Context, m *migrate.Migrator, arg string) error {
		version, err := migrate.ParseVersion(arg)
		if err != nil {
			return err
		}
		return m.To(ctx, version)
	},
}

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the bundled set")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	name, arg := flag.Arg(0), flag.Arg(1)

	if err := run(name, arg, *dir); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", name, err)
		os.Exit(1)
	}
}

func run(name, arg, dir string) error {
	switch name {
	case "create":
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.Create(dir, arg, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		source, err := migrate.Source(dir)
		if err != nil {
			return err
		}
		if err := migrate.Validate(source); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	cmd, ok := dbCommands[name]
	if !ok {
		return fmt.Errorf("unknown command\n%s", usage)
	}
	if name == "to" && arg == "" {
		return errors.New("missing target version")
	}

	rt, err := bootstrap.Start(context.Background(), "migrate")
	if err != nil {
		return err
	}
	ctx := rt.Logger.WithFields(context.Background(), map[string]any{"env": rt.Config.App.Env, "command": name})
	defer rt.Shutdown(ctx)

	sqlDB, err := connect(ctx, rt)
	if err != nil {
		return err
	}
	source, err := migrate.Source(dir)
	if err != nil {
		return err
	}
	m, err := migrate.New(sqlDB, source, rt.Logger)
	if err != nil {
		return err
	}
	if err := cmd(ctx, m, arg); err != nil {
		rt.Logger.Error(rt.Logger.WithFields(ctx, pkgerrors.Dump(err).Fields()), "migration failed", err)
		return err
	}
	return nil
}

// connect gives goose its own lib/pq connection on postgres and reuses the
// gorm pool otherwise.
func connect(ctx context.Context, rt *bootstrap.Runtime) (*sql.DB, error) {
	switch rt.Config.DB.Driver {
	case "sqlite", "sqlite3":
		return rt.DB.DB().DB()
	}
	conn, err := migrate.OpenPostgres(ctx, rt.Config.DB.DSN)
	if err != nil {
		return nil, err
	}
	rt.OnClose("migration connection", conn.Close)
	return conn, nil
}

func printStatus(ctx context.Context, m *migrate.Migrator, _ string) error {
	rows, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
	for _, row := range rows {
		applied := "pending"
		if row.Applied {
			applied = row.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, applied, row.Path)
	}
	return w.Flush()
}
