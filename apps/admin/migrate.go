package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/trezcool/goose"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/fs"
	"github.com/trezcool/minierp/storage/database"
)

const migrationsDir = "migrations"

// mockable
var (
	openDBFunc       = openDB
	gooseUpFunc      = goose.Up
	gooseUpByOneFunc = goose.UpByOne
	gooseUpToFunc    = goose.UpTo
	gooseDownFunc    = goose.Down
	gooseDownToFunc  = goose.DownTo
	gooseRedoFunc    = goose.Redo
)

// openDB creates the application database and role when missing, then connects as the app user.
func openDB(conf *core.Config) (*sql.DB, error) {
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	return database.Connect(ctx, conf)
}

func (cli *commandLine) migrate(args []string) error {
	command := args[0]
	var version int64
	switch command {
	case "up", "up-by-one", "down", "redo": // pass
	case "up-to", "down-to":
		if len(args) < 2 {
			return fmt.Errorf("%s must be of form: admin migrate %s VERSION", command, command)
		}
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("version must be a number (got '%s')", args[1])
		}
		version = v
	default:
		return fmt.Errorf("%q: no such command", command)
	}

	db, err := openDBFunc(cli.conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	switch command {
	case "up":
		err = gooseUpFunc(db, appfs.FS, migrationsDir)
	case "up-by-one":
		err = gooseUpByOneFunc(db, appfs.FS, migrationsDir)
	case "up-to":
		err = gooseUpToFunc(db, appfs.FS, migrationsDir, version)
	case "down":
		err = gooseDownFunc(db, appfs.FS, migrationsDir)
	case "down-to":
		err = gooseDownToFunc(db, appfs.FS, migrationsDir, version)
	case "redo":
		err = gooseRedoFunc(db, appfs.FS, migrationsDir)
	}
	return err
}
