package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trasima-livemap/internal/feed"
)

var (
	configPath   = flag.String("config", "livemap.yml", "YAML config file")
	httpPort     = flag.Int("port", 0, "HTTP port (overrides server.port)")
	staticDir    = flag.String("static_dir", "", "directory with the map page (overrides server.staticDir)")
	apiBase      = flag.String("api_base", "", "upstream API base address (overrides upstream.apiBase and "+apiBaseEnv+")")
	feedKind     = flag.String("feed", "", "feed kind: trasima|gtfsrt|siri-json|siri-xml")
	feedURL      = flag.String("feed_url", "", "feed URL (defaults to <api_base>"+feed.VehiclesPath+" for trasima)")
	intervalMS   = flag.Int("interval_ms", 0, "poll interval in milliseconds")
	skipInFlight = flag.Bool("skip_in_flight", false, "skip a poll tick while the previous fetch is outstanding")
)

func main() {
	flag.Parse()

	cfg, err := LoadConfig(*configPath, flagSet("config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	src, err := feed.New(cfg.feedConfig())
	if err != nil {
		log.Fatalf("feed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	hub := newSessionHub(gctx, cfg, src)
	handler, err := newRouter(cfg, hub)
	if err != nil {
		log.Fatalf("router: %v", err)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Printf("server starting on http://localhost:%d/ (feed %s %s, every %s)",
			cfg.Server.Port, cfg.feedConfig().Kind, cfg.feedConfig().URL, ms(cfg.Poll.IntervalMS))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutdown initiated...")
		sctx, cancel := context.WithTimeout(context.Background(), ms(cfg.Server.ShutdownTimeoutMS))
		defer cancel()
		err := srv.Shutdown(sctx)
		hub.wait()
		if err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		log.Printf("HTTP server shut down successfully")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// applyFlags lets explicitly set flags win over file and environment values.
func applyFlags(cfg *AppConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *httpPort
		case "static_dir":
			cfg.Server.StaticDir = *staticDir
		case "api_base":
			cfg.Upstream.APIBase = *apiBase
		case "feed":
			cfg.Feed.Kind = *feedKind
		case "feed_url":
			cfg.Feed.URL = *feedURL
		case "interval_ms":
			cfg.Poll.IntervalMS = *intervalMS
		case "skip_in_flight":
			cfg.Poll.SkipWhileInFlight = *skipInFlight
		}
	})
}
