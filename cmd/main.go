package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "github.com/aagamb/granthsync/api/v1"
	"github.com/aagamb/granthsync/internal/catalog"
	"github.com/aagamb/granthsync/internal/config"
	"github.com/aagamb/granthsync/internal/logging"
	"github.com/aagamb/granthsync/internal/metrics"
	"github.com/aagamb/granthsync/internal/notify"
	"github.com/aagamb/granthsync/internal/remote"
	"github.com/aagamb/granthsync/internal/repo"
	"github.com/aagamb/granthsync/internal/resolver"
	"github.com/aagamb/granthsync/internal/router"
	"github.com/aagamb/granthsync/internal/store"
	"github.com/aagamb/granthsync/internal/syncer"
	"github.com/aagamb/granthsync/internal/tracker"
)

func main() {

	configFile := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.New("").Error("load config", "err", err)
		os.Exit(1)
	}

	l := logging.New(cfg.LogFile)
	metrics.Register()

	cat, err := catalog.Load()
	if err != nil {
		l.Error("load catalogue", "err", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.StorageDir, cat.Books())
	if err != nil {
		l.Error("open store", "err", err)
		os.Exit(1)
	}

	client := remote.New(l, remote.Config{
		BaseURL:         cfg.RemoteBaseURL,
		DevMode:         cfg.DevMode,
		MaxRetries:      cfg.MaxRetries,
		RequestTimeout:  cfg.RequestTimeout,
		ResourceTimeout: cfg.ResourceTimeout,
	})
	if !client.Configured() {
		l.Warn("remote base url not set, sync and streaming disabled")
	}

	events := make(chan syncer.Event, 64)
	rep := syncer.NewChanReporter(events)
	sync := syncer.New(l, cat.Books(), st, client, rep, cfg.DevMode, cfg.DevBooks)
	res := resolver.New(l, st, os.DirFS(cfg.BundleDir), client)

	var sessions repo.SessionRepo
	if cfg.PostgresDSN != "" {
		pg, err := repo.NewPostgresSessionRepo(cfg.PostgresDSN)
		if err != nil {
			l.Error("connect postgres", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		sessions = pg
		l.Info("session history in postgres")
	} else {
		sessions = repo.NewInMemorySessionRepo()
		l.Info("session history in memory")
	}

	broadcaster := notify.NewBroadcaster()
	trk := tracker.New(l, sessions, events, broadcaster)
	trk.Run()

	handler := v1.NewHandler(l, sync, cat, res, st, sessions, broadcaster)
	r := router.New(l, handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ResourceTimeout,
	}

	go func() {
		l.Info("starting granthsync api", "addr", server.Addr, "dev_mode", cfg.DevMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	l.Info("received terminate, graceful shutdown", "signal", sig.String())

	sync.Cancel()

	timeoutContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(timeoutContext); err != nil {
		l.Error("server shutdown", "err", err)
	}

	close(events)
	trk.Stop()
}
