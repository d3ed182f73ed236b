package main

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/storage"
	"github.com/trezcool/studyrelay/storage/database"
)

var (
	// mockables
	readPasswordFunc = term.ReadPassword
	openTTYFunc      = func() (*os.File, error) { return os.Open("/dev/tty") }
	gooseRunFunc     = database.RunMigrations
	openDBFunc       = database.Open
	openStoreFunc    = storage.OpenNonceStore
	nowFunc          = time.Now

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer
	in     io.Reader
	client *http.Client
}

func newCommandLine(conf *core.Config, logger core.Logger) *commandLine {
	return &commandLine{
		conf:   conf,
		logger: logger,
		out:    os.Stdout,
		in:     os.Stdin,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (cl *commandLine) app() *cli.App {
	return &cli.App{
		Name:      "admin",
		Usage:     "StudyRelay administration",
		Writer:    cl.out,
		ErrWriter: cl.out,
		Commands: []*cli.Command{
			cl.migrateCommand(),
			cl.purgeNoncesCommand(),
			cl.signCommand(),
			cl.genSecretCommand(),
			cl.sendWelcomeCommand(),
		},
	}
}

// usage prints the command help and stops with errHelp.
func usage(c *cli.Context) error {
	_ = cli.ShowCommandHelp(c, c.Command.Name)
	return errHelp
}
