package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/higai/site-admin/internal/admins"
	"github.com/higai/site-admin/internal/config"
	"github.com/higai/site-admin/internal/server"
	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "site-admin",
	Short: "Content administration service for the marketing site",
	Long: `site-admin serves the content admin API (blogs, services, work,
careers, contact requests and testimonials), the public site API and
live document feeds.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := initLogging(cfg.Log); err != nil {
			return err
		}
		if cfg.Server.Production() {
			gin.SetMode(gin.ReleaseMode)
		}
		logger.Infof("config loaded: env=%s keycloak=%v mongo=%v redis=%v", cfg.Server.Environment, cfg.Keycloak.Enabled(), cfg.MongoDB.Enabled(), cfg.Redis.Enabled())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps, cleanup, err := server.Bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		srv := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           server.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			// SSE feeds clear their own write deadline
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Infof("listening on %s", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Infof("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warnf("shutdown: %v", err)
			}
		}
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print the argon2id hash of a password (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pw string
		if len(args) == 1 {
			pw = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			pw = strings.TrimRight(line, "\r\n")
		}
		if pw == "" {
			return errors.New("empty password")
		}
		hash, err := admins.HashPassword(pw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func initLogging(l config.LogConfig) error {
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	if l.File != "" {
		if err := logger.InitWithFile(l.Level, l.FileOptions()); err != nil {
			return err
		}
	} else {
		logger.Init(l.Level)
	}
	logger.SetHook(metrics.LogHook{})
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())
	return nil
}

func main() {
	rootCmd.AddCommand(serveCmd, hashPasswordCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
