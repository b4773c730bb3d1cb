// Package main provides a one-shot snapshot command. It polls every backend
// resource once and prints the dashboard to the terminal.
//
// Usage:
//
//	snapshot        render the dashboard as text
//	snapshot json   print the dashboard as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/trading-dashboard/internal/adapter"
	"github.com/trading-dashboard/internal/config"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/service"
	"github.com/trading-dashboard/internal/storage"
	"github.com/trading-dashboard/internal/types"
	"github.com/trading-dashboard/internal/view"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logs go to stderr so stdout carries only the dashboard
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.SetOutput(os.Stderr)

	backendLoc, err := cfg.BackendLocation()
	if err != nil {
		logger.WithError(err).Fatal("Invalid backend timezone")
	}
	types.NaiveLocation = backendLoc

	displayLoc, err := cfg.DisplayLocation()
	if err != nil {
		logger.WithError(err).Fatal("Invalid display timezone")
	}
	formatter, err := view.NewFormatter(cfg.Display.Currency, displayLoc, cfg.Display.DateTimeLayout)
	if err != nil {
		logger.WithError(err).Fatal("Invalid display settings")
	}

	client, err := adapter.NewBackendClient(adapter.BackendClientConfig{
		BaseURL:         cfg.Backend.BaseURL,
		TradesDays:      cfg.Backend.TradesDays,
		AnalysisDays:    cfg.Backend.AnalysisDays,
		PerformanceDays: cfg.Backend.PerformanceDays,
		Timeout:         cfg.Backend.RequestTimeout,
		Logger:          logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create backend client")
	}

	aggregator, err := service.NewAggregator(client, service.AggregatorConfig{
		FetchTimeout: cfg.Poll.FetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create aggregator")
	}

	snapshot := aggregator.Aggregate(context.Background(), 1, nil)

	state := &storage.ViewState{Snapshot: snapshot}
	if !snapshot.HasData() {
		state = &storage.ViewState{Failure: firstFailure(snapshot)}
	}
	d := view.BuildDashboard(state, formatter, cfg.Display.RecentTrades)

	if len(os.Args) > 1 && os.Args[1] == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			logger.WithError(err).Fatal("Failed to encode dashboard")
		}
	} else {
		fmt.Println(view.RenderText(d))
	}

	if !snapshot.HasData() {
		os.Exit(1)
	}
}

func firstFailure(s *types.AggregatedSnapshot) *types.FieldFailure {
	for _, f := range []*types.FieldFailure{s.Trades.Failure, s.Analysis.Failure, s.Portfolio.Failure, s.Performance.Failure} {
		if f != nil {
			return f
		}
	}
	return &types.FieldFailure{Code: "NO_DATA", Message: "no backend resource could be fetched"}
}
