package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/studyrelay/apps/api/echo"
	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
	"github.com/trezcool/studyrelay/core/welcome"
	"github.com/trezcool/studyrelay/fs"
	"github.com/trezcool/studyrelay/services/email"
	"github.com/trezcool/studyrelay/services/logger"
	"github.com/trezcool/studyrelay/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	defer logger.Sync()

	// set up nonce store
	ctx := context.Background()
	store, closeStore, err := storage.OpenNonceStore(ctx, conf, storage.Options{Prepare: conf.Debug})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up nonce store: %v", err), err)
	}
	defer func() {
		if err = closeStore(); err != nil {
			logger.Error(fmt.Sprintf("closing nonce store: %v", err), err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	auth := reqauth.NewAuthenticator(
		reqauth.Config{
			Secret:      conf.Auth.HMACSecret,
			BearerToken: conf.Auth.BearerToken,
			Tolerance:   conf.Auth.Tolerance,
			NonceTTL:    conf.Auth.NonceTTL,
		},
		store,
		logger,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(appfs.FS, conf.FrontendBaseURL, conf.Debug, logger)

	// A broken deployment keeps serving (every signed request fails closed) so that /health
	// can report it; surface it loudly at startup too.
	if err = auth.Ready(ctx); err != nil {
		logger.Error(fmt.Sprintf("request authentication not ready: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("nonceStore").Set(conf.Auth.NonceStore)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Authenticator: auth,
		WelcomeSvc:    welcome.NewService(mailSvc, validate),
		Translator:    translator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
