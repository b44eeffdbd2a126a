package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"balance-telemetry/internal/alerting"
	"balance-telemetry/internal/config"
	"balance-telemetry/internal/dashboard"
	"balance-telemetry/internal/fetcher"
	"balance-telemetry/internal/series"
	"balance-telemetry/internal/storage"
)

var errNoDatabase = errors.New("database.dsn not configured")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errNoDatabase
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
}

func (a *App) newBalanceFetcher() fetcher.TokenBalanceFetcher {
	return fetcher.NewOnChain(fetcher.OnChainOptions{
		RPCURL:        a.Config.Ethereum.RPCURL,
		TokenAddress:  a.Config.Ethereum.RLBAddress,
		WalletAddress: a.Config.Ethereum.WalletAddress,
		Timeout:       a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
}

// resolveWindow applies CLI overrides over the configured default window.
func (a *App) resolveWindow(opts WindowOptions) (series.WindowSpec, error) {
	preset := opts.Range
	if preset == "" {
		preset = a.Config.Dashboard.DefaultRange
	}
	days := opts.Days
	if days == 0 && opts.Range == "" {
		days = a.Config.Dashboard.CustomDays
	}
	return series.ParseWindowSpec(preset, days)
}

func (a *App) newController(history dashboard.HistorySource, trades dashboard.TradeSource, spec series.WindowSpec) *dashboard.Controller {
	return dashboard.New(history, trades, dashboard.Options{
		Window: spec,
		Merger: series.MergerOptions{
			Capacity:     a.Config.Feed.BufferCapacity,
			Quantum:      a.Config.Feed.Debounce,
			// Persisted live points come back on the next history refresh.
			PruneCovered: a.Config.Feed.Persist,
		},
	}, a.Logger)
}

// WindowOptions select the analysed range.
type WindowOptions struct {
	Range string
	Days  int
}

// ReportOptions configure the report command.
type ReportOptions struct {
	Window WindowOptions
	Points bool
}

// TradesOptions configure the trades command.
type TradesOptions struct {
	Window      WindowOptions
	TriggerType string
}

// ExportOptions configure chart/CSV export.
type ExportOptions struct {
	Window      WindowOptions
	CSVPath     string
	PNGPath     string
	PnLCSVPath  string
	PnLPNGPath  string
	TriggerType string
}

// PurgeOptions configure anomaly remediation.
type PurgeOptions struct {
	Yes           bool
	StableDelta   float64
	TokenDelta    float64
	PageSize      int
	MaxIterations int
}

// WatchOptions configure the live dashboard loop.
type WatchOptions struct {
	Window      WindowOptions
	RenderEvery time.Duration
}
