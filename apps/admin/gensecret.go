package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/trezcool/studyrelay/core/reqauth"
)

func (cl *commandLine) genSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "gensecret",
		Usage: "print a fresh random HMAC secret, hex encoded",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "bytes", Value: reqauth.MinSecretLen, Usage: "random bytes before encoding"},
		},
		Action: cl.genSecret,
	}
}

func (cl *commandLine) genSecret(c *cli.Context) error {
	n := c.Int("bytes")
	if n < reqauth.MinSecretLen {
		return errors.Errorf("a secret needs at least %d random bytes", reqauth.MinSecretLen)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return errors.Wrap(err, "reading random bytes")
	}
	_, _ = fmt.Fprintln(cl.out, hex.EncodeToString(buf))
	return nil
}
