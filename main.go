package main

import (
	"os"

	"github.com/fenilmodi00/ipo-collector/config"
	"github.com/fenilmodi00/ipo-collector/jobs"
	"github.com/fenilmodi00/ipo-collector/services"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	collectorConfig := cfg.CollectorConfiguration()

	logrus.WithFields(logrus.Fields{
		"listings_url":     collectorConfig.ListingsURL,
		"output_file":      collectorConfig.OutputFile,
		"processed_file":   collectorConfig.ProcessedFile,
		"retry_attempts":   collectorConfig.MaxRetryAttempts,
		"politeness_delay": collectorConfig.PolitenessDelay,
	}).Info("Recent IPO collector starting")

	parser, err := services.NewListingParser(collectorConfig.ListingsURL)
	if err != nil {
		logrus.Fatalf("Failed to initialize listing parser: %v", err)
	}

	fetcher := services.NewPageFetcher(collectorConfig)
	defer fetcher.Close()

	store := services.NewDedupStore(collectorConfig.ProcessedFile)
	sink := services.NewRecordSink(collectorConfig.OutputFile)

	collector := services.NewCollector(collectorConfig, fetcher, parser, store, sink)
	if cfg.EnableDynamicFallback {
		collector.WithDynamicFallback(services.NewDynamicPageFetcher(collectorConfig))
	}

	var verifier *services.LinkVerifier
	if cfg.VerifyLinks {
		verifier = services.NewLinkVerifier(cfg.GetVerifyLinksLimit())
	}

	job := jobs.NewCollectRecentIPOsJob(collector, verifier, collectorConfig.RunTimeout)
	summary := job.Run()

	if summary.Aborted {
		os.Exit(1)
	}
}
