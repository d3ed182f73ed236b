package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/trezcool/studyrelay/core/reqauth"
	"github.com/trezcool/studyrelay/core/welcome"
)

const welcomePath = "/v1/internal/welcome-email"

func (cl *commandLine) sendWelcomeCommand() *cli.Command {
	return &cli.Command{
		Name:  "sendwelcome",
		Usage: "send a signed welcome-email request to a running API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8000", Usage: "API base URL"},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "locale"},
		},
		Action: cl.sendWelcome,
	}
}

func (cl *commandLine) sendWelcome(c *cli.Context) error {
	secret, err := cl.secret(false)
	if err != nil {
		return err
	}
	body, err := json.Marshal(welcome.NewWelcome{
		Email:  c.String("email"),
		Name:   c.String("name"),
		Locale: c.String("locale"),
	})
	if err != nil {
		return errors.Wrap(err, "encoding body")
	}

	signer := reqauth.NewSigner(secret, cl.conf.Auth.BearerToken)
	signer.NowFunc = nowFunc
	url := strings.TrimSuffix(c.String("url"), "/") + welcomePath
	req, err := signer.NewRequest(c.Context, http.MethodPost, url, body)
	if err != nil {
		return err
	}

	res, err := cl.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer func() { _ = res.Body.Close() }()
	resBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

	_, _ = fmt.Fprintf(cl.out, "%s %s\n", res.Status, strings.TrimSpace(string(resBody)))
	if res.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("request failed with status %d", res.StatusCode)
	}
	return nil
}
