package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/trezcool/studyrelay/core/reqauth"
)

func (cl *commandLine) signCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "print the signing headers for a request body",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "body-file", Required: true, Usage: `file holding the exact body bytes ("-" for stdin)`},
			&cli.StringFlag{Name: "nonce", Usage: "nonce to use (default: random)"},
			&cli.Int64Flag{Name: "timestamp", Usage: "unix seconds to use (default: now)"},
		},
		Action: cl.sign,
	}
}

func (cl *commandLine) sign(c *cli.Context) error {
	bodyFile := c.String("body-file")
	body, err := cl.readBody(bodyFile)
	if err != nil {
		return err
	}
	secret, err := cl.secret(bodyFile == "-")
	if err != nil {
		return err
	}

	signer := reqauth.NewSigner(secret, cl.conf.Auth.BearerToken)
	signer.NowFunc = nowFunc
	ts := strconv.FormatInt(signer.NowFunc().Unix(), 10)
	if c.IsSet("timestamp") {
		ts = strconv.FormatInt(c.Int64("timestamp"), 10)
	}
	nonce := c.String("nonce")
	if nonce == "" {
		nonce = signer.NewNonce()
	}

	h := signer.SignWith(ts, nonce, body)
	_, _ = fmt.Fprintf(cl.out, "%s: %s\n", reqauth.HeaderTimestamp, h.Timestamp)
	_, _ = fmt.Fprintf(cl.out, "%s: %s\n", reqauth.HeaderNonce, h.Nonce)
	_, _ = fmt.Fprintf(cl.out, "%s: %s\n", reqauth.HeaderSignature, h.Signature)
	if h.Authorization != "" {
		_, _ = fmt.Fprintf(cl.out, "%s: %s\n", reqauth.HeaderAuthorization, h.Authorization)
	}
	return nil
}

func (cl *commandLine) readBody(path string) ([]byte, error) {
	if path == "-" {
		body, err := io.ReadAll(cl.in)
		return body, errors.Wrap(err, "reading stdin")
	}
	body, err := os.ReadFile(path)
	return body, errors.Wrap(err, "reading body file")
}

// secret returns the configured HMAC secret, prompting for it when unset. Once stdin has
// carried the body, the prompt reads from the controlling terminal instead.
func (cl *commandLine) secret(stdinUsed bool) (string, error) {
	secret := cl.conf.Auth.HMACSecret
	if secret == "" {
		fd := int(os.Stdin.Fd())
		if stdinUsed {
			tty, err := openTTYFunc()
			if err != nil {
				return "", errors.Wrap(err, "no terminal to prompt for the HMAC secret; set it in the environment")
			}
			defer func() { _ = tty.Close() }()
			fd = int(tty.Fd())
		}

		_, _ = fmt.Fprint(cl.out, "Enter HMAC secret:")
		raw, err := readPasswordFunc(fd)
		_, _ = fmt.Fprintln(cl.out)
		if err != nil {
			return "", errors.Wrap(err, "reading secret")
		}
		secret = string(raw)
	}
	if err := reqauth.ValidateSecret(secret); err != nil {
		return "", err
	}
	return secret, nil
}
