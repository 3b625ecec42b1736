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

	agentv1 "go_cfgsync/agent/api/v1"
	"go_cfgsync/agent/config"
	"go_cfgsync/agent/identity"
	"go_cfgsync/agent/store"
	"go_cfgsync/agent/syncer"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var iniPath string

	root := &cobra.Command{
		Use:           "cfgsync-agent",
		Short:         "Client agent that syncs provider configuration with the management service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), iniPath)
		},
	}
	root.PersistentFlags().StringVarP(&iniPath, "config", "c", "", "INI config file (env vars override it)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the scheduler and the local API until interrupted",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), iniPath)
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run one sync now and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return syncOnce(cmd.Context(), iniPath)
			},
		},
		&cobra.Command{
			Use:   "device-id",
			Short: "Print this machine's device id",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printDeviceID(cmd, iniPath)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Fatal("agent exited")
	}
}

type agent struct {
	cfg    *config.Config
	db     *store.DB
	client *syncer.Client
	ident  *identity.Identity
}

func open(iniPath string) (*agent, error) {
	cfg, err := config.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ident := identity.New(db.Settings(), identity.MachineID{})
	client := syncer.NewClient(cfg, db, ident, logrus.NewEntry(logrus.StandardLogger()))
	return &agent{cfg: cfg, db: db, client: client, ident: ident}, nil
}

func run(ctx context.Context, iniPath string) error {
	a, err := open(iniPath)
	if err != nil {
		return err
	}
	defer a.db.Close()
	logger := logrus.WithField("component", "agent")

	sched := syncer.NewScheduler(a.cfg, a.client, logrus.NewEntry(logrus.StandardLogger()))
	sched.Start(ctx)
	defer sched.Stop()

	var srv *http.Server
	errCh := make(chan error, 1)
	if a.cfg.LocalAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		r := gin.New()
		r.Use(gin.Recovery())
		agentv1.SetupRouter(r, a.client, a.cfg.LocalToken, logrus.WithField("component", "local_api"))

		srv = &http.Server{
			Addr:              a.cfg.LocalAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.WithField("addr", a.cfg.LocalAddr).Info("local API starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start local API: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

func syncOnce(ctx context.Context, iniPath string) error {
	a, err := open(iniPath)
	if err != nil {
		return err
	}
	defer a.db.Close()
	return a.client.RunOnce(ctx)
}

func printDeviceID(cmd *cobra.Command, iniPath string) error {
	a, err := open(iniPath)
	if err != nil {
		return err
	}
	defer a.db.Close()

	id, err := a.ident.GetOrCreate(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
