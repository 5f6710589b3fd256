package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// PriceBatch is the cached price map for one snapshot batch
type PriceBatch struct {
	BatchID  string             `msgpack:"batch_id"`
	Prices   map[string]float64 `msgpack:"prices"` // asset id -> latest close
	CachedAt int64              `msgpack:"cached_at"`
}

// PriceCache stores msgpack-encoded price batches in cache.db.
// The websocket stream and leaderboard read from here instead of
// re-running the batched candle query.
type PriceCache struct {
	cacheDB *sql.DB
	log     zerolog.Logger
}

// NewPriceCache creates a new price cache
func NewPriceCache(cacheDB *sql.DB, log zerolog.Logger) *PriceCache {
	return &PriceCache{
		cacheDB: cacheDB,
		log:     log.With().Str("repo", "price_cache").Logger(),
	}
}

// Store encodes and persists a price batch, replacing any previous
// entry with the same batch id.
func (c *PriceCache) Store(batchID string, prices map[string]float64) error {
	batch := PriceBatch{
		BatchID:  batchID,
		Prices:   prices,
		CachedAt: time.Now().Unix(),
	}

	payload, err := msgpack.Marshal(&batch)
	if err != nil {
		return fmt.Errorf("failed to encode price batch: %w", err)
	}

	_, err = c.cacheDB.Exec(
		"INSERT OR REPLACE INTO price_cache (batch_id, payload, cached_at) VALUES (?, ?, ?)",
		batchID, payload, batch.CachedAt)
	if err != nil {
		return fmt.Errorf("failed to store price batch: %w", err)
	}

	return nil
}

// Get returns a cached price batch by id, nil when absent
func (c *PriceCache) Get(batchID string) (*PriceBatch, error) {
	var payload []byte
	err := c.cacheDB.QueryRow(
		"SELECT payload FROM price_cache WHERE batch_id = ?", batchID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price batch: %w", err)
	}

	var batch PriceBatch
	if err := msgpack.Unmarshal(payload, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode price batch: %w", err)
	}

	return &batch, nil
}

// GetLatest returns the most recently cached price batch, nil when the
// cache is empty.
func (c *PriceCache) GetLatest() (*PriceBatch, error) {
	var payload []byte
	err := c.cacheDB.QueryRow(
		"SELECT payload FROM price_cache ORDER BY cached_at DESC LIMIT 1").Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest price batch: %w", err)
	}

	var batch PriceBatch
	if err := msgpack.Unmarshal(payload, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode price batch: %w", err)
	}

	return &batch, nil
}

// Prune removes cached batches older than the retention window
func (c *PriceCache) Prune(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := c.cacheDB.Exec("DELETE FROM price_cache WHERE cached_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune price cache: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check pruned rows: %w", err)
	}

	return int(removed), nil
}
