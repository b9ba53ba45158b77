// Command report prints the newest alerts, most recent first, as a table or
// JSON for downstream formatting.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentra/siem/internal/config"
	"github.com/sentra/siem/internal/report"
	"github.com/sentra/siem/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config (optional)")
	limit := flag.Int("n", report.DefaultLimit, "how many alerts to show")
	asJSON := flag.Bool("json", false, "emit JSON instead of a table")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Database.URL, cfg.Database.OperationTimeout.Std())
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	entries, err := report.New(st).Summarize(context.Background(), *limit)
	if err != nil {
		logger.Error("summary failed", "error", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			logger.Error("encode failed", "error", err)
			os.Exit(1)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSEVERITY\tRULE\tUSER\tSOURCE\tTECHNIQUE\tEVIDENCE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.Severity, e.Rule, e.User, e.SourceIP, e.Technique, e.Evidence)
	}
	w.Flush()
}
