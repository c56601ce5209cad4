// Package cmd provides CLI commands for the emlsync tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/otherjamesbrown/emlsync/config"
	"github.com/otherjamesbrown/emlsync/credentials"
	"github.com/otherjamesbrown/emlsync/pkg/crm"
	"github.com/otherjamesbrown/emlsync/pkg/enrichment"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
	"github.com/otherjamesbrown/emlsync/pkg/ledger"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
	"github.com/otherjamesbrown/emlsync/pkg/pipeline"
)

// Oracle analyzes messages and parses company search text.
type Oracle interface {
	pipeline.Oracle
	enrichment.CompanyParser
}

// KeyStore holds API keys outside the configuration.
type KeyStore interface {
	Get(account string) (string, error)
	Set(account, key string) error
	Delete(account string) error
	Lookup(account string) string
}

// Deps holds the dependencies shared by all commands. Tests replace the
// constructors; the root command fills Options from its flags.
type Deps struct {
	Options config.LoadOptions
	Config  *config.Config
	Logger  logging.Logger

	LoadConfig  func(config.LoadOptions) (*config.Config, error)
	Keyring     KeyStore
	NewLogger   func(*config.Config) logging.Logger
	OpenLedger  func(context.Context, ledger.Config) (ledger.Ledger, error)
	NewCRM      func(crm.Config, logging.Logger) (pipeline.CRM, error)
	NewOracle   func(intelligence.Config, logging.Logger) Oracle
	NewEnricher func(enrichment.Config, enrichment.CompanyParser, logging.Logger) (pipeline.Enricher, error)
	NewRegistry func() *prometheus.Registry
	ReadSecret  func(w io.Writer, prompt string) (string, error)
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig:  config.LoadConfig,
		Keyring:     credentials.NewStore(),
		NewLogger:   newLogger,
		OpenLedger:  ledger.Open,
		NewCRM:      newCRM,
		NewOracle:   newOracle,
		NewEnricher: newEnricher,
		NewRegistry: prometheus.NewRegistry,
		ReadSecret:  readSecret,
	}
}

// Load loads configuration and the logger once. Keys missing from flags,
// environment and files are taken from the keyring.
func (d *Deps) Load() error {
	if d.Config != nil {
		return nil
	}
	load := d.LoadConfig
	if load == nil {
		load = config.LoadConfig
	}
	cfg, err := load(d.Options)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var filled []string
	if d.Keyring != nil {
		filled = cfg.FillKeys(d.Keyring.Lookup, credentials.AccountCRM, credentials.AccountLLM)
	}

	newLog := d.NewLogger
	if newLog == nil {
		newLog = newLogger
	}
	d.Config = cfg
	d.Logger = newLog(cfg)
	logging.SetGlobal(d.Logger)

	d.Logger.Debug("Configuration loaded",
		logging.F("sources", cfg.Sources),
		logging.F("keyring", filled),
	)
	return nil
}

// log returns the loaded logger, or a no-op logger before Load.
func (d *Deps) log() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger
}

func newLogger(cfg *config.Config) logging.Logger {
	lc := logging.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.JSONFormat = cfg.LogJSON
	return logging.NewLogger(lc)
}

func newCRM(cfg crm.Config, logger logging.Logger) (pipeline.CRM, error) {
	return crm.NewClient(cfg, crm.WithLogger(logger))
}

func newOracle(cfg intelligence.Config, logger logging.Logger) Oracle {
	return intelligence.NewGateway(cfg, intelligence.WithGatewayLogger(logger))
}

// newEnricher returns nil when no provider is configured.
func newEnricher(cfg enrichment.Config, parser enrichment.CompanyParser, logger logging.Logger) (pipeline.Enricher, error) {
	chain, err := enrichment.New(cfg, parser, &http.Client{}, enrichment.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if len(chain.Providers()) == 0 {
		return nil, nil
	}
	return chain, nil
}
