// Package results persists completed backtest runs: the summary row,
// the full equity curve, and the rebalance event log.
//
// Schema:
//
//	backtest.runs          (id, run_id, config_hash, strategy, start_date,
//	                        end_date, metrics jsonb, created_at)
//	backtest.equity_points (run_id, date, value)
//	backtest.events        (run_id, date, trigger, trades jsonb, cost,
//	                        pre_value, post_value, cash_before, cash_after,
//	                        turnover)
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/helios/internal/backtest"
	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/pkg/logger"
)

// Summary is one persisted run without its curve and event detail
type Summary struct {
	ID         int64                        `json:"id"`
	RunID      string                       `json:"run_id"`
	ConfigHash string                       `json:"config_hash"`
	Strategy   string                       `json:"strategy"`
	StartDate  time.Time                    `json:"start_date"`
	EndDate    time.Time                    `json:"end_date"`
	Metrics    contracts.PerformanceMetrics `json:"metrics"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// Store persists and reads backtest results
// ⭐ SSOT: 백테스트 결과 저장은 여기서만
type Store struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewStore creates a new result store
func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{pool: pool, logger: log}
}

// Save writes one completed run in a single transaction and returns
// its row id
func (s *Store) Save(ctx context.Context, res *backtest.Result, strategyName, configHash string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("results: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return 0, fmt.Errorf("results: encode metrics: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO backtest.runs (run_id, config_hash, strategy, start_date, end_date, metrics, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id
	`, res.RunID, configHash, strategyName, res.StartDate, res.EndDate, metricsJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("results: insert run: %w", err)
	}

	// Equity curve is the bulk of the data; CopyFrom keeps it one round trip
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"backtest", "equity_points"},
		[]string{"run_id", "date", "value"},
		pgx.CopyFromSlice(len(res.EquityCurve), func(i int) ([]interface{}, error) {
			p := res.EquityCurve[i]
			return []interface{}{id, p.Date, p.Value}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("results: copy equity curve: %w", err)
	}

	for _, ev := range res.Events {
		trades, err := json.Marshal(ev.Trades)
		if err != nil {
			return 0, fmt.Errorf("results: encode trades: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO backtest.events
				(run_id, date, trigger, trades, cost, pre_value, post_value, cash_before, cash_after, turnover)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, id, ev.Date, string(ev.Trigger), trades, ev.Cost,
			ev.PreValue, ev.PostValue, ev.CashBefore, ev.CashAfter, ev.Turnover)
		if err != nil {
			return 0, fmt.Errorf("results: insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("results: commit: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"id":     id,
		"run_id": res.RunID,
		"days":   len(res.EquityCurve),
		"events": len(res.Events),
	}).Info("Backtest result saved")

	return id, nil
}

// Get loads one run summary by row id
func (s *Store) Get(ctx context.Context, id int64) (*Summary, error) {
	var sum Summary
	var metricsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_id, config_hash, strategy, start_date, end_date, metrics, created_at
		FROM backtest.runs
		WHERE id = $1
	`, id).Scan(&sum.ID, &sum.RunID, &sum.ConfigHash, &sum.Strategy,
		&sum.StartDate, &sum.EndDate, &metricsJSON, &sum.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("results: get run %d: %w", id, err)
	}
	if err := json.Unmarshal(metricsJSON, &sum.Metrics); err != nil {
		return nil, fmt.Errorf("results: decode metrics for run %d: %w", id, err)
	}
	return &sum, nil
}

// List returns the most recent run summaries, newest first
func (s *Store) List(ctx context.Context, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, config_hash, strategy, start_date, end_date, metrics, created_at
		FROM backtest.runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("results: list runs: %w", err)
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var sum Summary
		var metricsJSON []byte
		if err := rows.Scan(&sum.ID, &sum.RunID, &sum.ConfigHash, &sum.Strategy,
			&sum.StartDate, &sum.EndDate, &metricsJSON, &sum.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metricsJSON, &sum.Metrics); err != nil {
			return nil, err
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

// EquityCurve loads the full curve for one run, date ascending
func (s *Store) EquityCurve(ctx context.Context, id int64) ([]contracts.EquityPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, value
		FROM backtest.equity_points
		WHERE run_id = $1
		ORDER BY date ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("results: equity curve for run %d: %w", id, err)
	}
	defer rows.Close()

	var curve []contracts.EquityPoint
	for rows.Next() {
		var p contracts.EquityPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, err
		}
		curve = append(curve, p)
	}
	return curve, rows.Err()
}

// Events loads the rebalance log for one run, date ascending
func (s *Store) Events(ctx context.Context, id int64) ([]contracts.RebalanceEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, trigger, trades, cost, pre_value, post_value, cash_before, cash_after, turnover
		FROM backtest.events
		WHERE run_id = $1
		ORDER BY date ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("results: events for run %d: %w", id, err)
	}
	defer rows.Close()

	var events []contracts.RebalanceEvent
	for rows.Next() {
		var ev contracts.RebalanceEvent
		var trigger string
		var trades []byte
		if err := rows.Scan(&ev.Date, &trigger, &trades, &ev.Cost,
			&ev.PreValue, &ev.PostValue, &ev.CashBefore, &ev.CashAfter, &ev.Turnover); err != nil {
			return nil, err
		}
		ev.Trigger = contracts.TriggerKind(trigger)
		if err := json.Unmarshal(trades, &ev.Trades); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
