// Banner Report prints impression, click and CTR totals per banner and slot.
//
// It reads aggregated counts from ClickHouse and, when POSTGRES_DSN is set,
// joins banner names and slots from Postgres.
//
// Usage:
//
//	go run ./tools/banner_report -days=7
//	go run ./tools/banner_report -days=30 -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/patrickwarner/portalads/internal/analytics"
	"github.com/patrickwarner/portalads/internal/config"
	"github.com/patrickwarner/portalads/internal/db"
	"github.com/patrickwarner/portalads/internal/models"
	"github.com/patrickwarner/portalads/internal/reporting"
)

func main() {
	cfg := config.Load()
	var (
		days    = flag.Int("days", 7, "Number of days to include in report")
		dsn     = flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse DSN")
		asJSON  = flag.Bool("json", false, "print the report as JSON")
		timeout = flag.Duration("timeout", 30*time.Second, "query timeout")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintf(os.Stderr, "Error: CLICKHOUSE_DSN or -clickhouse-dsn is required\n")
		os.Exit(1)
	}

	ch, err := analytics.InitClickHouse(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := ch.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	since := time.Now().UTC().AddDate(0, 0, -*days)
	counts, err := ch.CountsSince(ctx, since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying events: %v\n", err)
		os.Exit(1)
	}

	var banners []models.Banner
	if cfg.PostgresDSN != "" {
		pg, err := db.InitPostgres(cfg.PostgresDSN, 2, 1, time.Minute, time.Minute)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: banner names unavailable: %v\n", err)
		} else {
			defer pg.Close()
			banners, err = pg.ListBanners(ctx, db.BannerFilter{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: banner names unavailable: %v\n", err)
			}
		}
	}

	summary := reporting.Summarize(since, counts, banners)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printReport(summary, *days)
}

func printReport(s reporting.Summary, days int) {
	fmt.Printf("==============================================================================\n")
	fmt.Printf("                            BANNER PERFORMANCE REPORT                         \n")
	fmt.Printf("==============================================================================\n")
	fmt.Printf("Report Period: %d days (since %s)\n", days, s.Since.Format("2006-01-02"))
	fmt.Printf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Printf("OVERALL\n")
	fmt.Printf("------------------------------------------------------------------------------\n")
	fmt.Printf("Total Impressions:  %s\n", formatNumber(s.Total.Impressions))
	fmt.Printf("Total Clicks:       %s\n", formatNumber(s.Total.Clicks))
	fmt.Printf("Overall CTR:        %.2f%%\n\n", s.Total.CTR)

	if len(s.Slots) > 0 {
		fmt.Printf("BY SLOT\n")
		fmt.Printf("------------------------------------------------------------------------------\n")
		fmt.Printf("Slot         | Banners | Impressions | Clicks |   CTR   \n")
		fmt.Printf("-------------|---------|-------------|--------|---------\n")
		for _, sm := range s.Slots {
			name := sm.SlotName
			if name == "" {
				name = "(unknown)"
			}
			fmt.Printf("%-12s | %7d | %11s | %6s | %6.2f%%\n",
				name, sm.Banners, formatNumber(sm.Impressions), formatNumber(sm.Clicks), sm.CTR)
		}
		fmt.Printf("\n")
	}

	if len(s.Banners) > 0 {
		fmt.Printf("BY BANNER\n")
		fmt.Printf("------------------------------------------------------------------------------\n")
		fmt.Printf("Banner ID | Name                 | Slot         | Impressions | Clicks |   CTR   \n")
		fmt.Printf("----------|----------------------|--------------|-------------|--------|---------\n")
		for _, b := range s.Banners {
			fmt.Printf("%9d | %-20.20s | %-12.12s | %11s | %6s | %6.2f%%\n",
				b.BannerID, b.Name, b.SlotName, formatNumber(b.Impressions), formatNumber(b.Clicks), b.CTR)
		}
		fmt.Printf("\n")
	}

	if s.Total.Impressions > 0 && s.Total.Clicks == 0 {
		fmt.Printf("No clicks recorded. Check that click events reach /event.\n")
	}
	fmt.Printf("==============================================================================\n")
}

// formatNumber adds thousands separators, e.g. 1234567 becomes "1,234,567".
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	result := ""
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}
	return result
}
