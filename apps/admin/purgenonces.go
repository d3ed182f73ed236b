package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/trezcool/studyrelay/storage"
)

func (cl *commandLine) purgeNoncesCommand() *cli.Command {
	return &cli.Command{
		Name:  "purgenonces",
		Usage: "delete nonces that expired before the given time (default: now)",
		Flags: []cli.Flag{
			&cli.TimestampFlag{Name: "before", Layout: time.RFC3339, Usage: "RFC3339 cutoff"},
		},
		Action: cl.purgeNonces,
	}
}

func (cl *commandLine) purgeNonces(c *cli.Context) error {
	before := nowFunc()
	if ts := c.Timestamp("before"); ts != nil {
		before = *ts
	}

	store, closeStore, err := openStoreFunc(c.Context, cl.conf, storage.Options{})
	if err != nil {
		return errors.Wrap(err, "opening nonce store")
	}
	defer func() { _ = closeStore() }()

	n, err := store.Purge(c.Context, before)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cl.out, "purged %d expired nonce(s)\n", n)
	return nil
}
