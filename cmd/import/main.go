// Command import runs one catalog import against the configured
// storefront and exits. Deploy pipelines run it to seed a fresh
// database before the server takes traffic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/chaintara/shopchat-linebot-go/internal/catalog"
	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

var (
	urlFlag     = flag.String("url", "", "Storefront URL (overrides CATALOG_URL)")
	timeoutFlag = flag.Duration("timeout", 0, "Fetch timeout (overrides CATALOG_TIMEOUT)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	url := cfg.CatalogURL
	if *urlFlag != "" {
		url = *urlFlag
	}
	if url == "" {
		_, _ = fmt.Fprintln(os.Stderr, "No catalog URL: set CATALOG_URL or pass -url")
		os.Exit(1)
	}

	timeout := cfg.CatalogTimeout
	if *timeoutFlag > 0 {
		timeout = *timeoutFlag
	}

	log := logger.New(cfg.LogLevel)

	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout+30*time.Second)
	defer cancel()

	importer := catalog.NewImporter(db, url, timeout, log, nil)
	count, err := importer.Refresh(ctx)
	if err != nil {
		log.WithError(err).Error("Catalog import failed")
		os.Exit(1)
	}

	total, _ := db.CountProducts(ctx)
	log.WithField("imported", count).WithField("total", total).Info("Catalog import complete")
}
