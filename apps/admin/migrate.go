package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/trezcool/studyrelay/storage/database"
)

func (cl *commandLine) migrateCommand() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "run a goose migration command against the app database",
		ArgsUsage: "up|up-by-one|up-to V|down|down-to V|redo|reset|status|version|fix [args]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "create-db", Usage: "create the app user and database first"},
		},
		Action: cl.migrate,
	}
}

func (cl *commandLine) migrate(c *cli.Context) error {
	if c.NArg() == 0 {
		return usage(c)
	}
	if c.Bool("create-db") {
		if err := database.CreateIfNotExist(c.Context, cl.conf); err != nil {
			return err
		}
	}

	db, err := openDBFunc(cl.conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	args := c.Args().Slice()
	return gooseRunFunc(db.DB, args[0], args[1:]...)
}
