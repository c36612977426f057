package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"apr-signal-bot/internal/alerts"
	"apr-signal-bot/internal/config"
	"apr-signal-bot/internal/market"
	"apr-signal-bot/internal/metrics"
	"apr-signal-bot/internal/state"
	"apr-signal-bot/internal/state/sqlite"
	"apr-signal-bot/internal/strategy"
	"apr-signal-bot/internal/timescale"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	source    market.Source
	stream    *market.StreamSource
	book      *state.PositionBook
	bands     *strategy.Bands
	manager   *strategy.Manager
	gate      *alerts.Gate
	notifiers []alerts.Notifier
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	timescale *timescale.Writer
	now       func() time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	book := state.NewPositionBook(store, log)
	directional, err := strategy.NewDirectional(cfg.Strategy.Directional, book, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	bands := strategy.NewBands(cfg.Strategy.Bands, log)
	manager := strategy.NewManager(strategy.LimitsFromConfig(cfg.Manager), log, directional, bands)

	var source market.Source
	var stream *market.StreamSource
	switch cfg.Feed.Source {
	case "ws":
		stream = market.NewStreamSource(cfg.Feed.URL, cfg.Feed.ReconnectDelay.Std(), log)
		source = stream
	default:
		source = market.NewFileSource(cfg.Feed.Path)
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		source:  source,
		stream:  stream,
		book:    book,
		bands:   bands,
		manager: manager,
		gate:    alerts.NewGate(cfg.Alerts.Cooldown.Std(), log),
		notifiers: []alerts.Notifier{
			alerts.NewDiscord(cfg.Alerts.Discord, log),
			alerts.NewTelegram(cfg.Alerts.Telegram, log),
		},
		metrics:   m,
		prom:      prom,
		timescale: writer,
		now:       time.Now,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()
	a.timescale.Start(ctx)
	if a.stream != nil {
		go func() {
			if err := a.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("rates stream stopped", zap.Error(err))
			}
		}()
	}
	if a.prom != nil {
		a.serveMetrics(ctx)
	}
	a.log.Info("position book loaded", zap.Int("symbols", len(a.book.All(ctx))))

	if err := a.tick(ctx); err != nil {
		a.log.Warn("evaluation tick failed", zap.Error(err))
	}
	ticker := time.NewTicker(a.cfg.Feed.RefreshInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.log.Warn("evaluation tick failed", zap.Error(err))
			}
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// tick runs one evaluation cycle. On a feed failure it falls back to the
// cached batch so open positions still get their exit checks; entries are
// only taken from fresh data.
func (a *App) tick(ctx context.Context) error {
	snaps, err := a.source.Fetch(ctx)
	fresh := err == nil
	if err != nil {
		a.metrics.FeedErrors.Inc()
		a.log.Warn("rates fetch failed", zap.Error(err))
		cached, savedAt, ok := state.LoadBatch(ctx, a.store)
		if !ok {
			return err
		}
		a.log.Warn("falling back to cached batch", zap.Time("saved_at", savedAt))
		snaps = cached
	}

	if fresh {
		for _, snap := range snaps {
			a.evaluate(ctx, snap)
		}
	}
	a.bandExitPass(ctx, snaps)

	now := a.now()
	for _, flag := range a.manager.Monitor(now) {
		a.log.Warn("position flagged",
			zap.String("strategy", string(flag.Position.Kind)),
			zap.String("symbol", flag.Position.Symbol),
			zap.String("reason", flag.Reason),
			zap.Time("entered_at", flag.Position.EntryTime))
	}

	summary := a.manager.Summary()
	a.log.Debug("portfolio summary",
		zap.Int("positions", summary.TotalPositions),
		zap.Float64("exposure_usd", summary.TotalExposureUSD),
		zap.Float64("weighted_return", summary.WeightedExpectedReturn),
		zap.Float64("utilization", summary.Utilization))
	a.timescale.EnqueuePortfolio(timescale.PortfolioSnapshot{
		Time:                   now,
		TotalPositions:         summary.TotalPositions,
		TotalExposureUSD:       summary.TotalExposureUSD,
		TotalCollateralUSD:     summary.TotalCollateralUSD,
		WeightedExpectedReturn: summary.WeightedExpectedReturn,
		Utilization:            summary.Utilization,
	})

	if fresh {
		if err := state.SaveBatch(ctx, a.store, snaps, now); err != nil {
			a.log.Warn("batch cache write failed", zap.Error(err))
		}
	}
	return nil
}

// evaluate runs the full pipeline over one snapshot. Exit opportunities
// skip admission; a close signal is never gated by sizing or risk limits.
func (a *App) evaluate(ctx context.Context, snap market.Snapshot) {
	a.metrics.EvaluationsRun.Inc()
	for _, opp := range a.manager.EvaluateAll(ctx, snap) {
		a.metrics.OpportunitiesFound.Inc()
		if opp.Action.IsExit() {
			a.manager.Close(opp.Kind, opp.Symbol)
			a.recordSignal(opp, snap, true, "")
			a.dispatch(ctx, opp)
			continue
		}
		if err := a.manager.ShouldExecute(opp); err != nil {
			a.metrics.AdmissionRejected.Inc()
			a.log.Debug("opportunity rejected",
				zap.String("strategy", string(opp.Kind)),
				zap.String("symbol", opp.Symbol),
				zap.Error(err))
			a.recordSignal(opp, snap, false, err.Error())
			continue
		}
		a.manager.Execute(opp, snap)
		a.recordSignal(opp, snap, true, "")
		a.dispatch(ctx, opp)
	}
}

// bandExitPass closes open band positions whose implied rate has crossed
// the exit level. The band strategy itself is stateless, so this check
// belongs to the cycle, not to Evaluate.
func (a *App) bandExitPass(ctx context.Context, snaps []market.Snapshot) {
	bySymbol := make(map[string]market.Snapshot, len(snaps))
	for _, snap := range snaps {
		bySymbol[snap.Symbol] = snap
	}
	closed := make(map[string]bool)
	for _, pos := range a.manager.Open(strategy.KindImpliedAPRBands) {
		if closed[pos.Symbol] {
			continue
		}
		snap, ok := bySymbol[pos.Symbol]
		if !ok {
			continue
		}
		opp, ok := a.bands.ExitSignal(snap, pos.PositionType)
		if !ok {
			continue
		}
		a.manager.Close(pos.Kind, pos.Symbol)
		closed[pos.Symbol] = true
		a.recordSignal(*opp, snap, true, "")
		a.dispatch(ctx, *opp)
	}
}

func (a *App) dispatch(ctx context.Context, opp strategy.Opportunity) {
	if !a.gate.Allow(opp) {
		a.metrics.AlertsSuppressed.Inc()
		return
	}
	alert := alerts.Render(opp)
	delivered := false
	for _, notifier := range a.notifiers {
		if err := notifier.Send(ctx, alert); err != nil {
			a.metrics.NotifyFailed.Inc()
			a.log.Warn("alert delivery failed",
				zap.String("channel", notifier.Name()),
				zap.String("symbol", opp.Symbol),
				zap.Error(err))
			continue
		}
		delivered = true
	}
	if delivered {
		a.metrics.AlertsSent.Inc()
	}
}

func (a *App) recordSignal(opp strategy.Opportunity, snap market.Snapshot, admitted bool, rejectReason string) {
	a.timescale.EnqueueSignal(timescale.SignalEvent{
		Time:           a.now(),
		Strategy:       string(opp.Kind),
		Symbol:         opp.Symbol,
		Action:         string(opp.Action),
		ImpliedRate:    snap.ImpliedRate,
		ReferenceRate:  snap.ReferenceRate,
		ExpectedReturn: opp.ExpectedReturn,
		RiskScore:      opp.RiskScore,
		MaxSizeUSD:     opp.MaxPositionSize,
		Admitted:       admitted,
		RejectReason:   rejectReason,
	})
}
