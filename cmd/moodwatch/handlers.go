package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/moodwatch/moodwatch/internal/config"
	"github.com/moodwatch/moodwatch/internal/crawl"
	"github.com/moodwatch/moodwatch/internal/scheduler"
	"github.com/moodwatch/moodwatch/internal/store"
	"github.com/moodwatch/moodwatch/pkg/server"
	"github.com/moodwatch/moodwatch/pkg/twitter"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildCrawler(cfg *config.Config, db store.Store) (*crawl.Crawler, error) {
	limiter, err := twitter.NewLimiter(cfg.Twitter.RateLimitPerWindow)
	if err != nil {
		return nil, err
	}

	client, err := twitter.NewClient(cfg.Twitter.BearerToken, limiter)
	if err != nil {
		return nil, err
	}

	return crawl.New(db, client, crawl.Options{
		HistoryDepthDays: cfg.Crawl.HistoryDepthDays,
	}), nil
}

func runCrawl() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	crawler, err := buildCrawler(cfg, db)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return crawler.RunCycle(ctx)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	crawler, err := buildCrawler(cfg, db)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(db, port)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		}
	}()

	sched := scheduler.New(crawler, cfg.Crawl.ParseInterval())
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Fprintln(os.Stderr, "shutting down...")
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	return server.New(db, port).ListenAndServe()
}

func runRuns(jsonOutput bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	runs, err := db.RecentRuns(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("no crawl runs recorded yet (try: moodwatch crawl)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tFETCHED\tQUEUED\tERRORS\tSTARTED")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n",
			run.ID, run.Status, run.TweetsFetched, run.JobsQueued,
			run.ErrorsCount, run.StartedAt)
	}
	return w.Flush()
}
