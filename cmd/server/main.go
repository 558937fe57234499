package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-login-bridge/auth"
	"github.com/jrsteele09/go-login-bridge/delegation"
	"github.com/jrsteele09/go-login-bridge/delegation/statestore"
	"github.com/jrsteele09/go-login-bridge/internal/config"
	"github.com/jrsteele09/go-login-bridge/principals"
	"github.com/jrsteele09/go-login-bridge/principals/memrepo"
	"github.com/jrsteele09/go-login-bridge/principals/sqlstore"
	"github.com/jrsteele09/go-login-bridge/server"
	"github.com/jrsteele09/go-login-bridge/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const memoryDatabaseScheme = "memory://"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	setupLogger(c)
	displayAppname(c.AppName)

	ctx := context.Background()

	directory, closeDirectory, err := openDirectory(ctx, c)
	if err != nil {
		return err
	}
	defer closeDirectory()

	states, closeStates, err := openStateStore(ctx, c)
	if err != nil {
		return err
	}
	defer closeStates()

	codec, err := token.NewCodec(c.SigningSecret, token.WithTTL(c.TokenTTL))
	if err != nil {
		return fmt.Errorf("token.NewCodec: %w", err)
	}

	if !c.ProviderConfigured() {
		log.Warn().Msg("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, login routes will fail")
	}
	delegator := delegation.New(delegation.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		IssuerURL:    c.GetIssuerURL(),
		RedirectURL:  redirectURL(c),
		Scopes:       c.Scopes,
		Timeout:      c.ProviderTimeout,
	})

	flow := auth.NewLoginFlow(delegator, states, directory, codec, auth.LoginFlowConfig{
		AllowedOrigins: c.AllowedOrigins,
		DefaultOrigin:  c.GetFrontendOrigin(),
		StateTTL:       c.LoginStateTTL,
	})

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, flow, auth.NewAuthenticator(codec, directory)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func setupLogger(c config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	var out io.Writer = os.Stderr
	level := zerolog.InfoLevel
	if c.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Str("app", c.AppName).Logger()
}

// openDirectory selects the principal store from DATABASE_URL.
func openDirectory(ctx context.Context, c config.Config) (principals.Directory, func(), error) {
	if strings.HasPrefix(c.DatabaseURL, memoryDatabaseScheme) {
		log.Warn().Msg("using in-memory principal directory, data is lost on restart")
		return memrepo.New(), func() {}, nil
	}

	store, err := sqlstore.Open(ctx, c.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore.Open: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close principal directory")
		}
	}, nil
}

// openStateStore uses Redis when REDIS_ADDR is set so several replicas can
// share login attempts.
func openStateStore(ctx context.Context, c config.Config) (statestore.Store, func(), error) {
	if c.RedisAddr == "" {
		return statestore.NewMemory(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
	}
	log.Info().Str("addr", c.RedisAddr).Msg("login state stored in redis")
	return statestore.NewRedis(client), func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("close redis client")
		}
	}, nil
}

func redirectURL(c config.Config) string {
	if c.RedirectURL != "" {
		return c.RedirectURL
	}
	return c.GetBaseURL() + server.RouteCallbackGoogle
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
