// Package marketdata loads daily close prices from PostgreSQL and
// pivots them into the matrices the simulation consumes.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

// Bar is one daily close observation
type Bar struct {
	Symbol string
	Date   time.Time
	Close  float64
}

// Repository reads and writes daily prices
// ⭐ SSOT: 시장 데이터 저장소는 여기서만
type Repository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewRepository creates a new market data repository
func NewRepository(pool *pgxpool.Pool, log *logger.Logger) *Repository {
	return &Repository{pool: pool, logger: log}
}

// Symbols lists every symbol with at least one price row
func (r *Repository) Symbols(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT symbol
		FROM market.daily_prices
		ORDER BY symbol ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("marketdata: list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// PriceMatrix loads closes for the symbols over [from, to] and pivots
// them into a date-by-symbol matrix. Dates where no symbol traded are
// absent; a symbol without a close on a covered date gets a missing
// cell.
func (r *Repository) PriceMatrix(ctx context.Context, symbols []string, from, to time.Time) (*timeseries.Matrix, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("marketdata: empty symbol list")
	}

	query := `
		SELECT symbol, trade_date, close_price
		FROM market.daily_prices
		WHERE symbol = ANY($1) AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC, symbol ASC
	`

	rows, err := r.pool.Query(ctx, query, symbols, from, to)
	if err != nil {
		return nil, fmt.Errorf("marketdata: load prices: %w", err)
	}
	defer rows.Close()

	colOf := make(map[string]int, len(symbols))
	for j, sym := range symbols {
		colOf[sym] = j
	}

	var dates []time.Time
	var data [][]float64
	rowOf := make(map[time.Time]int)

	for rows.Next() {
		var bar Bar
		if err := rows.Scan(&bar.Symbol, &bar.Date, &bar.Close); err != nil {
			return nil, err
		}
		bar.Date = bar.Date.UTC().Truncate(24 * time.Hour)

		i, ok := rowOf[bar.Date]
		if !ok {
			i = len(dates)
			rowOf[bar.Date] = i
			dates = append(dates, bar.Date)
			row := make([]float64, len(symbols))
			for j := range row {
				row[j] = timeseries.Missing()
			}
			data = append(data, row)
		}
		data[i][colOf[bar.Symbol]] = bar.Close
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("marketdata: no prices for %d symbols in [%s, %s]",
			len(symbols), from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	m, err := timeseries.New(dates, symbols, data)
	if err != nil {
		return nil, fmt.Errorf("marketdata: pivot prices: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"days":    m.Rows(),
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
	}).Debug("Price matrix loaded")

	return m, nil
}

// SaveBars upserts close observations in one batch
func (r *Repository) SaveBars(ctx context.Context, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO market.daily_prices (symbol, trade_date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			close_price = EXCLUDED.close_price
	`
	for _, bar := range bars {
		batch.Queue(query, bar.Symbol, bar.Date, bar.Close)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("marketdata: save bars: %w", err)
		}
	}
	return nil
}
