// Package marketdata manages candle history, price lookups, and market data ingestion.
package marketdata

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// candleColumns is the list of columns for the market_candles table
const candleColumns = `id, market_asset_id, timestamp_utc, open, high, low, close, volume`

// CandleRepository handles candle database operations and price lookups
type CandleRepository struct {
	marketDB *sql.DB
	log      zerolog.Logger
}

// NewCandleRepository creates a new candle repository
func NewCandleRepository(marketDB *sql.DB, log zerolog.Logger) *CandleRepository {
	return &CandleRepository{
		marketDB: marketDB,
		log:      log.With().Str("repo", "candles").Logger(),
	}
}

// GetLatestPrices returns the most recent close per asset in one batched
// query. Assets with no candle history are absent from the map.
func (r *CandleRepository) GetLatestPrices() (map[string]float64, error) {
	query := `
		SELECT c.market_asset_id, c.close
		FROM market_candles c
		INNER JOIN (
			SELECT market_asset_id, MAX(timestamp_utc) AS max_ts
			FROM market_candles
			GROUP BY market_asset_id
		) latest ON c.market_asset_id = latest.market_asset_id
		       AND c.timestamp_utc = latest.max_ts`

	rows, err := r.marketDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]float64)
	for rows.Next() {
		var assetID string
		var close float64
		if err := rows.Scan(&assetID, &close); err != nil {
			return nil, fmt.Errorf("failed to scan latest price: %w", err)
		}
		prices[assetID] = close
	}

	return prices, rows.Err()
}

// GetLatestPrice returns the most recent close for one asset.
// Returns ErrNoPriceAvailable when the asset has no candle history.
func (r *CandleRepository) GetLatestPrice(assetID string) (float64, error) {
	query := `SELECT close FROM market_candles
		WHERE market_asset_id = ?
		ORDER BY timestamp_utc DESC LIMIT 1`

	var price float64
	err := r.marketDB.QueryRow(query, assetID).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNoPriceAvailable
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query latest price for %s: %w", assetID, err)
	}

	return price, nil
}

// GetRecentCandles returns up to limit candles for an asset, oldest first
func (r *CandleRepository) GetRecentCandles(assetID string, limit int) ([]domain.Candle, error) {
	query := `SELECT ` + candleColumns + ` FROM (
			SELECT ` + candleColumns + ` FROM market_candles
			WHERE market_asset_id = ?
			ORDER BY timestamp_utc DESC LIMIT ?
		) ORDER BY timestamp_utc ASC`

	rows, err := r.marketDB.Query(query, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		candle, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, candle)
	}

	return candles, rows.Err()
}

// GetExistingTimestamps returns the set of candle timestamps already stored
// for an asset. Used to dedup before bulk insert.
func (r *CandleRepository) GetExistingTimestamps(assetID string) (map[int64]struct{}, error) {
	rows, err := r.marketDB.Query(
		"SELECT timestamp_utc FROM market_candles WHERE market_asset_id = ?", assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candle timestamps: %w", err)
	}
	defer rows.Close()

	existing := make(map[int64]struct{})
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan candle timestamp: %w", err)
		}
		existing[ts] = struct{}{}
	}

	return existing, rows.Err()
}

// BulkInsert inserts candles in a single statement, skipping rows whose
// (asset, timestamp) pair already exists. Returns the number inserted.
func (r *CandleRepository) BulkInsert(candles []domain.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT OR IGNORE INTO market_candles
		(market_asset_id, timestamp_utc, open, high, low, close, volume) VALUES `)

	args := make([]interface{}, 0, len(candles)*7)
	for i, c := range candles {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, c.MarketAssetID, c.TimestampUTC, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	result, err := r.marketDB.Exec(sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert candles: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check inserted rows: %w", err)
	}

	return int(inserted), nil
}

// CountByAsset returns the number of stored candles for an asset
func (r *CandleRepository) CountByAsset(assetID string) (int, error) {
	var count int
	err := r.marketDB.QueryRow(
		"SELECT COUNT(*) FROM market_candles WHERE market_asset_id = ?", assetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count candles: %w", err)
	}
	return count, nil
}

// scanCandle scans a candle row
func scanCandle(rows *sql.Rows) (domain.Candle, error) {
	var c domain.Candle
	err := rows.Scan(
		&c.ID,
		&c.MarketAssetID,
		&c.TimestampUTC,
		&c.Open,
		&c.High,
		&c.Low,
		&c.Close,
		&c.Volume,
	)
	return c, err
}
