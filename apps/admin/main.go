package main

import (
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/services/logger"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)

	// start CLI
	cl := newCommandLine(conf, logger)
	err = cl.app().Run(os.Args)
	logger.Sync()
	if err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error(err.Error(), err)
		}
		os.Exit(1)
	}
}
