package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterje/microterm/internal/config"
	"github.com/peterje/microterm/internal/db"
	"github.com/peterje/microterm/internal/events"
	"github.com/peterje/microterm/internal/journal"
	"github.com/peterje/microterm/internal/logging"
	"github.com/peterje/microterm/internal/metrics"
	"github.com/peterje/microterm/internal/preflight"
	"github.com/peterje/microterm/internal/pty"
	"github.com/peterje/microterm/internal/server"
	"github.com/peterje/microterm/internal/shepherd"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch: "microterm shepherd" runs the shepherd process
	if len(os.Args) > 1 && os.Args[1] == "shepherd" {
		if err := runShepherd(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "shepherd failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "microterm: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, string, error) {
	defaultPath, _ := config.DefaultPath()
	path := fs.String("config", defaultPath, "config file")
	listen := fs.String("listen", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, "", err
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	return cfg, *path, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	return logging.New(logCfg)
}

func ptyConfig(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) pty.Config {
	ptyCfg := pty.DefaultConfig()
	ptyCfg.ShellFallbacks = cfg.PTY.ShellFallbacks
	ptyCfg.ExtraPath = cfg.PTY.ExtraPath
	ptyCfg.Locale = cfg.PTY.Locale
	ptyCfg.ReadBufferSize = cfg.PTY.ReadBufferSize
	ptyCfg.Logger = log
	ptyCfg.Metrics = m
	return ptyCfg
}

func runShepherd(args []string) error {
	cfg, _, err := loadConfig(flag.NewFlagSet("shepherd", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("shepherd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return shepherd.Run(ctx, shepherd.Options{
		SocketPath: cfg.Shepherd.SocketPath,
		PIDPath:    cfg.PIDPath(),
		PTY:        ptyConfig(cfg, nil, nil),
		Logger:     log,
	})
}

func run(args []string) error {
	cfg, cfgPath, err := loadConfig(flag.NewFlagSet("microterm", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Preflight checks
	shell := pty.ResolveShell(os.LookupEnv, cfg.PTY.ShellFallbacks)
	shellStatus, ptyOk := preflight.CheckAll(shell, logger.Named("preflight"))
	if !ptyOk && cfg.Shepherd.RemoteURL == "" {
		return errors.New("no pseudoterminal device; cannot host sessions")
	}

	// Open database
	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	store := journal.NewStore(database)

	m := metrics.New()

	// Connect to or start the shepherd process
	var (
		mgr    pty.SessionManager
		src    events.Source
		client *shepherd.Client
	)
	switch {
	case cfg.Shepherd.RemoteURL != "":
		client, err = shepherd.DialTunnel(ctx, cfg.Shepherd.RemoteURL, cfg.Shepherd.RemoteToken, logger.Named("shepherd"))
		if err != nil {
			return fmt.Errorf("connect to remote host: %w", err)
		}
		log.Info("connected to remote host", zap.String("url", cfg.Shepherd.RemoteURL))
	case cfg.Shepherd.Enabled:
		client, err = connectOrStartShepherd(cfg, cfgPath, logger.Named("shepherd"))
		if err != nil {
			log.Warn("shepherd unavailable, falling back to in-process PTY manager", zap.Error(err))
		}
	}
	var local *pty.Manager
	if client != nil {
		mgr, src = client, client.Events()
	} else {
		bus := events.NewBus()
		local = pty.NewManager(bus, ptyConfig(cfg, logger.Named("pty"), m))
		mgr, src = local, bus
	}

	// Reconcile the journal with sessions that survived a restart
	live := mgr.List()
	ids := make([]string, 0, len(live))
	for _, info := range live {
		ids = append(ids, info.ID)
	}
	if n, err := store.MarkAbandoned(ctx, ids, time.Now()); err != nil {
		log.Warn("reconcile journal", zap.Error(err))
	} else if n > 0 {
		log.Info("marked abandoned sessions", zap.Int64("count", n))
	}
	if len(ids) > 0 {
		log.Info("re-adopted sessions from shepherd", zap.Int("count", len(ids)))
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go journal.Watch(watchCtx, src, store, logger.Named("journal"))

	srv := server.New(server.Options{
		Manager:      journal.NewTracker(mgr, store, logger.Named("journal")),
		Events:       src,
		Store:        store,
		Metrics:      m,
		Logger:       log,
		Shell:        shellStatus,
		PTYReady:     ptyOk,
		Shepherd:     client != nil,
		Server:       cfg.Server,
		RateLimit:    cfg.RateLimit,
		HistoryLimit: cfg.Storage.HistoryLimit,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheme := "http"
	if cfg.Server.TLS {
		tlsCfg, err := server.TLSConfig(cfg.Server.CertFile, cfg.Server.KeyFile, cfg.TLSDir())
		if err != nil {
			return fmt.Errorf("tls setup: %w", err)
		}
		httpSrv.TLSConfig = tlsCfg
		scheme = "https"
	}

	// Graceful shutdown
	go func() {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case <-shepherdDone(client):
			log.Error("lost connection to shepherd")
			stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
		srv.Close()
	}()

	log.Info("server running", zap.String("addr", scheme+"://"+cfg.Server.ListenAddr))
	if cfg.Server.TLS {
		err = httpSrv.ListenAndServeTLS("", "")
	} else {
		err = httpSrv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	// The shepherd keeps its sessions alive; in-process sessions die with us.
	if client != nil {
		client.Disconnect()
	} else {
		local.CloseAll()
	}
	stopWatch()
	log.Info("server stopped")
	return nil
}

func shepherdDone(client *shepherd.Client) <-chan struct{} {
	if client == nil {
		return nil
	}
	return client.Done()
}

// connectOrStartShepherd connects to an existing shepherd or launches a new one.
func connectOrStartShepherd(cfg *config.Config, cfgPath string, log *zap.Logger) (*shepherd.Client, error) {
	socketPath := cfg.Shepherd.SocketPath

	// Try connecting to existing shepherd
	client, err := shepherd.Dial(socketPath, log)
	if err == nil {
		if err := client.Ping(); err == nil {
			log.Info("connected to existing shepherd")
			return client, nil
		}
		client.Disconnect()
	}

	// Launch a new shepherd process
	log.Info("starting shepherd process")
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("get executable path: %w", err)
	}

	cmd := exec.Command(exe, "shepherd", "-config", cfgPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start shepherd: %w", err)
	}
	// Detach; the shepherd outlives this process.
	cmd.Process.Release()

	for i := 0; i < 40; i++ { // 40 * 50ms = 2s
		time.Sleep(50 * time.Millisecond)
		client, err = shepherd.Dial(socketPath, log)
		if err == nil {
			if err := client.Ping(); err == nil {
				log.Info("shepherd started and connected")
				return client, nil
			}
			client.Disconnect()
		}
	}

	return nil, errors.New("shepherd did not become available within 2s")
}
