/*
main.go - PostgreSQL schema migrations

PURPOSE:
  Applies, rolls back or inspects the embedded schema migrations on a
  PostgreSQL database. SQLite databases apply their schema on open and
  do not need this tool.

USAGE:
  migrate [-config path] [-dsn url] up|down|version|force N

  The DSN defaults to database.dsn from the configuration.
*/
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/config"
	"github.com/wdeanegpt/property-sub001/logger"
	"github.com/wdeanegpt/property-sub001/store/sqlstore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dsn := flag.String("dsn", "", "PostgreSQL connection URL (overrides config)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] up|down|version|force N\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	url := cfg.Database.DSN
	if *dsn != "" {
		url = *dsn
	}
	if err := run(url, flag.Args(), log); err != nil {
		log.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(dsn string, args []string, log *zap.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	m, err := sqlstore.NewMigrator(db, log)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return m.Force(v)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
