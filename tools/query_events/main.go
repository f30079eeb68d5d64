package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/config"
	"github.com/patrickwarner/portalads/internal/observability"
)

// query_events prints raw per-banner event counts as JSON.
func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var (
		dsn      string
		since    time.Duration
		bannerID int
	)
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.DurationVar(&since, "since", 24*time.Hour, "look back window")
	flag.IntVar(&bannerID, "banner", 0, "only report this banner")
	flag.Parse()

	if dsn == "" {
		dsn = config.Load().ClickHouseDSN
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn required")
		os.Exit(1)
	}

	ch, err := analytics.InitClickHouse(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = ch.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	counts, err := ch.CountsSince(ctx, time.Now().UTC().Add(-since))
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}
	if bannerID > 0 {
		filtered := counts[:0]
		for _, c := range counts {
			if c.BannerID == bannerID {
				filtered = append(filtered, c)
			}
		}
		counts = filtered
	}
	logger.Debug("event counts loaded", zap.Int("rows", len(counts)), zap.Duration("since", since))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(counts); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}
