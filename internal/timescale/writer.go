package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"apr-signal-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// SignalEvent is one strategy decision as it left the pipeline, whether
// or not it was admitted. RejectReason is empty for admitted signals.
type SignalEvent struct {
	Time           time.Time
	Strategy       string
	Symbol         string
	Action         string
	ImpliedRate    float64
	ReferenceRate  float64
	ExpectedReturn float64
	RiskScore      float64
	MaxSizeUSD     float64
	Admitted       bool
	RejectReason   string
}

// PortfolioSnapshot is the manager's aggregate view at the end of an
// evaluation cycle.
type PortfolioSnapshot struct {
	Time                   time.Time
	TotalPositions         int
	TotalExposureUSD       float64
	TotalCollateralUSD     float64
	WeightedExpectedReturn float64
	Utilization            float64
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	signals    chan SignalEvent
	portfolios chan PortfolioSnapshot
	started    atomic.Bool
	dropSig    atomic.Uint64
	dropPort   atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:         db,
		log:        log,
		schema:     schema,
		signals:    make(chan SignalEvent, queueSize),
		portfolios: make(chan PortfolioSnapshot, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueSignal(event SignalEvent) {
	if w == nil {
		return
	}
	select {
	case w.signals <- event:
		return
	default:
		if w.dropSig.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale signal queue full")
		}
	}
}

func (w *Writer) EnqueuePortfolio(snapshot PortfolioSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.portfolios <- snapshot:
		return
	default:
		if w.dropPort.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale portfolio queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.signals:
			w.writeSignal(ctx, event)
		case snapshot := <-w.portfolios:
			w.writePortfolio(ctx, snapshot)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		strategy TEXT NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		implied_rate DOUBLE PRECISION NOT NULL,
		reference_rate DOUBLE PRECISION NOT NULL,
		expected_return DOUBLE PRECISION NOT NULL,
		risk_score DOUBLE PRECISION NOT NULL,
		max_size_usd DOUBLE PRECISION NOT NULL,
		admitted BOOLEAN NOT NULL,
		reject_reason TEXT NOT NULL DEFAULT ''
	)`, w.table("signal_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		total_positions INTEGER NOT NULL,
		total_exposure_usd DOUBLE PRECISION NOT NULL,
		total_collateral_usd DOUBLE PRECISION NOT NULL,
		weighted_expected_return DOUBLE PRECISION NOT NULL,
		utilization DOUBLE PRECISION NOT NULL
	)`, w.table("portfolio_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("signal_events"))); err != nil && w.log != nil {
		w.log.Warn("timescale signal_events hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("portfolio_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("timescale portfolio_snapshots hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeSignal(ctx context.Context, event SignalEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, strategy, symbol, action, implied_rate, reference_rate,
		expected_return, risk_score, max_size_usd, admitted, reject_reason
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	)`, w.table("signal_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		event.Strategy,
		event.Symbol,
		event.Action,
		event.ImpliedRate,
		event.ReferenceRate,
		event.ExpectedReturn,
		event.RiskScore,
		event.MaxSizeUSD,
		event.Admitted,
		event.RejectReason,
	); err != nil && w.log != nil {
		w.log.Warn("timescale signal insert failed", zap.Error(err))
	}
}

func (w *Writer) writePortfolio(ctx context.Context, snapshot PortfolioSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, total_positions, total_exposure_usd, total_collateral_usd,
		weighted_expected_return, utilization
	) VALUES (
		$1,$2,$3,$4,$5,$6
	)`, w.table("portfolio_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snapshot.Time,
		snapshot.TotalPositions,
		snapshot.TotalExposureUSD,
		snapshot.TotalCollateralUSD,
		snapshot.WeightedExpectedReturn,
		snapshot.Utilization,
	); err != nil && w.log != nil {
		w.log.Warn("timescale portfolio insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
