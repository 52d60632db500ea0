package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/migrations"
	"github.com/jwalitptl/clinic-booking/internal/repository/postgres"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-timeout 2m] up|down|status|version\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "migration timeout")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.NewZap(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	migrator, err := migrations.NewMigrator(db.DB, logger.GooseLogger{SugaredLogger: sugar})
	if err != nil {
		sugar.Fatalw("failed to create migrator", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		err = migrator.Status(ctx)
	case "version":
		var version int64
		if version, err = migrator.Version(ctx); err == nil {
			sugar.Infow("current schema version", "version", version)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		sugar.Fatalw("migration failed", "command", flag.Arg(0), "error", err)
	}
}
