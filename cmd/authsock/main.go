// Package main is the authsock application entrypoint.
package main

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/authsock/authsock/api/handlers"
	"github.com/authsock/authsock/internal/authstore"
	"github.com/authsock/authsock/internal/config"
	"github.com/authsock/authsock/internal/logutil"
	"github.com/authsock/authsock/internal/relay"
	"github.com/authsock/authsock/pkg/sock"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

var (
	configPath string
	clientURL  string
	authToken  string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "authsock",
		Short: "Authenticated, liveness-monitored WebSocket messaging.",
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Starts the relay server.",
		RunE:  runServer,
	}

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Connects to a relay server and exchanges chat messages.",
		RunE:  runClient,
	}
)

func init() {
	serverCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	clientCmd.Flags().StringVar(&clientURL, "url", "ws://localhost:8080/ws", "relay WebSocket URL")
	clientCmd.Flags().StringVar(&authToken, "token", "", "bearer token submitted during the handshake")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace..error)")

	rootCmd.AddCommand(serverCmd, clientCmd)
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return errors.Wrap(err, "load config failed")
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logutil.SetLevel(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return errors.Wrap(err, "create database directory failed")
	}
	db, err := authstore.OpenDB(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "open token store failed")
	}
	defer db.Close()
	store := authstore.NewStore(db)

	hub := relay.NewHub(cfg.HistorySize)

	wsHandler := handlers.NewWebSocketHandler(store, hub, sock.Upgrader{
		PingInterval:   cfg.PingInterval,
		PongTimeout:    cfg.PongTimeout,
		MinBatchWindow: cfg.MinBatchWindow,
		MaxBatchWindow: cfg.MaxBatchWindow,
		AuthTimeout:    cfg.AuthTimeout,
	})
	tokenHandler := handlers.NewTokenHandler(store)

	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := r.Group("/api")
	tokenHandler.RegisterRoutes(api)
	wsHandler.RegisterRoutes(r.Group(""))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.ListenAddr).Info("relay server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve failed")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown failed")
	})
	return g.Wait()
}

func runClient(cmd *cobra.Command, _ []string) error {
	if logLevel == "" {
		logLevel = "info"
	}
	logutil.SetLevel(logLevel)

	opts := []sock.ClientCfg{}
	if authToken != "" {
		opts = append(opts, sock.WithStaticCredentials(map[string]string{"token": authToken}))
	}
	client, err := sock.NewClient(clientURL, opts...)
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}

	client.On("chat", func(ev *sock.Event) {
		var text string
		if err := ev.Envelope.DecodeData(&text); err != nil {
			logger.WithError(err).Warn("malformed chat payload")
			return
		}
		logger.WithField("text", text).Info("chat")
	})
	client.On("$close", func(*sock.Event) {
		logger.Info("connection closed")
	})

	client.Open()
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	err = client.AwaitReady(ctx)
	cancel()
	if err != nil {
		return errors.Wrap(err, "handshake failed")
	}
	logger.Info("connected; type messages, one per line")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := client.Send("chat", line, false); err != nil {
			return errors.Wrap(err, "send failed")
		}
	}
	return errors.Wrap(scanner.Err(), "read stdin failed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(errors.Wrap(err, "execute root command failed"))
	}
}
