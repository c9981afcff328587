package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/phenrril/kitehouse/internal/app"
	"github.com/phenrril/kitehouse/internal/config"
)

func main() {
	cliApp := &cli.App{
		Name:  "kitehouse",
		Usage: "kite shop storefront and admin API",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP server",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "seed", Usage: "seed the catalog when it is empty", Value: true},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema",
				Action: func(c *cli.Context) error {
					a, err := bootstrap()
					if err != nil {
						return err
					}
					return a.Close()
				},
			},
			{
				Name:  "seed",
				Usage: "migrate and seed an empty catalog",
				Action: func(c *cli.Context) error {
					a, err := bootstrap()
					if err != nil {
						return err
					}
					defer a.Close()
					return a.Seed(c.Context)
				},
			},
		},
		DefaultCommand: "serve",
	}
	if err := cliApp.Run(os.Args); err != nil {
		zlog.Fatal().Err(err).Msg("kitehouse")
	}
}

// bootstrap loads config, sets up logging, connects and migrates.
func bootstrap() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	a, err := app.NewApp(cfg, db)
	if err != nil {
		return nil, err
	}
	if err := a.Migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsProduction() {
		zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	zerolog.DefaultContextLogger = &zlog.Logger
}

func serve(c *cli.Context) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()
	if c.Bool("seed") {
		if err := a.Seed(c.Context); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              ":" + a.Cfg.Port,
		Handler:           a.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", server.Addr).Str("env", a.Cfg.Env).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return err
	}
	zlog.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
