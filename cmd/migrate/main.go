package main

import (
	"flag"
	"log"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/postpulse/postpulse-backend/internal/config"
	"github.com/postpulse/postpulse-backend/internal/repository"
)

var (
	flags  = flag.NewFlagSet("migrate", flag.ExitOnError)
	driver = flags.String("driver", "", "database driver (postgres or sqlite); defaults to PP_DB_DRIVER")
	dsn    = flags.String("dsn", "", "database DSN; defaults to PP_DB_DSN")
)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		log.Fatal("Usage: migrate [-driver D] [-dsn DSN] COMMAND\n\nCommands:\n  up\n  down\n  status\n  version")
	}

	if *driver == "" || *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if *driver == "" {
			*driver = cfg.Database.Driver
		}
		if *dsn == "" {
			*dsn = cfg.Database.DSN
		}
	}

	db, err := repository.OpenDB(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := repository.PrepareGoose(*driver); err != nil {
		log.Fatalf("Failed to configure goose: %v", err)
	}

	command := args[0]
	switch command {
	case "up":
		if err := goose.Up(db, repository.MigrationsDir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
	case "down":
		if err := goose.Down(db, repository.MigrationsDir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
	case "status":
		if err := goose.Status(db, repository.MigrationsDir); err != nil {
			log.Fatalf("Migration status failed: %v", err)
		}
	case "version":
		if err := goose.Version(db, repository.MigrationsDir); err != nil {
			log.Fatalf("Migration version failed: %v", err)
		}
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
