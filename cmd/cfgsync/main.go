package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "go_cfgsync/api/v1"
	"go_cfgsync/internal/auth"
	"go_cfgsync/internal/cache"
	"go_cfgsync/internal/config"
	"go_cfgsync/internal/db"
	"go_cfgsync/internal/geoip"
	"go_cfgsync/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var iniPath string

	root := &cobra.Command{
		Use:           "cfgsync",
		Short:         "Device configuration sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), iniPath)
		},
	}
	root.PersistentFlags().StringVarP(&iniPath, "config", "c", "", "INI config file (env vars override it)")

	root.AddCommand(&cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Fatal("cfgsync exited")
	}
}

func loadConfig(iniPath string) (*config.Config, error) {
	if iniPath != "" {
		return config.LoadFromINI(iniPath)
	}
	return config.Load()
}

func serve(ctx context.Context, iniPath string) error {
	// 1. Load configuration
	cfg, err := loadConfig(iniPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	logger := logrus.WithField("component", "cfgsync")
	logger.Info("configuration loaded")

	// 2. Database
	gdb, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	if cfg.Migrate {
		if err := db.Migrate(gdb); err != nil {
			return err
		}
	}

	// 3. Redis (optional, backs the sync rate limiter)
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	// 4. GeoIP
	geo := geoip.Open(cfg.GeoIPDBPath)
	defer geo.Close()

	// 5. Router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	v1.SetupRouter(r, cfg, v1.Deps{
		DB:      gdb,
		Redis:   rdb,
		GeoIP:   geo,
		Metrics: metrics.New(cfg.Metrics),
		Logger:  logrus.WithField("component", "http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
