package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

// dbCommands run against a live connection; create and validate do not.
var dbCommands = map[string]func(ctx context.Context, conn *sql.DB, src migrate.Source, version string) error{
	"up": func(ctx context.Context, conn *sql.DB, src migrate.Source, _ string) error {
		return migrate.Run(ctx, conn, src, "up")
	},
	"down": func(ctx context.Context, conn *sql.DB, src migrate.Source, _ string) error {
		return migrate.Run(ctx, conn, src, "down")
	},
	"status": func(ctx context.Context, conn *sql.DB, src migrate.Source, _ string) error {
		return migrate.Run(ctx, conn, src, "status")
	},
	"version": func(ctx context.Context, conn *sql.DB, src migrate.Source, version string) error {
		if version == "" {
			return fmt.Errorf("-version is required")
		}
		return migrate.MigrateToVersion(ctx, conn, src, version)
	},
}

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.EmbeddedDir, `migrations directory; "migrations" selects the set compiled into the binary`)
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	switch *cmd {
	case "create":
		target := *dir
		if target == migrate.EmbeddedDir {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		exitOn(ctx, logg, "create migration", err)
		fmt.Println(path)
		return
	case "validate":
		exitOn(ctx, logg, "validate migrations", migrate.ValidateDir(*dir))
		logg.Info(ctx, "migrations valid")
		return
	}

	run, ok := dbCommands[*cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd %q\n", *cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()

	conn, err := dbClient.SQL()
	exitOn(ctx, logg, "unwrap sql.DB", err)

	if err := run(ctx, conn, migrate.Source{Dir: *dir}, *version); err != nil {
		dbClient.Close()
		exitOn(ctx, logg, "goose "+*cmd, err)
	}
	logg.Info(ctx, "migrate finished")
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
