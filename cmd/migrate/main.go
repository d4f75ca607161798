// Package main applies schema migrations.
//
// Usage:
//
//	migrate up
//	migrate down [steps]
//	migrate version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"lotkeeper/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load configuration: %v", err)
	}

	sourceURL := "file://migrations"
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		sourceURL = "file://" + dir
	}

	m, err := migrate.New(sourceURL, cfg.Database.ConnectionString())
	if err != nil {
		fail("open migrator: %v", err)
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil {
				fail("invalid steps: %v", err)
			}
		}
		err = m.Steps(-steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			fail("version: %v", verr)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fail("migrate %s: %v", os.Args[1], err)
	}
	fmt.Println("ok")
}

func usage() {
	fmt.Println("usage: migrate <up|down [steps]|version>")
}

func fail(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}
