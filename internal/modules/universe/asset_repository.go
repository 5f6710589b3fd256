// Package universe manages the catalog of tradable market assets.
package universe

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// assetColumns is the list of columns for the market_assets table
// Used to avoid SELECT * which can break when schema changes
const assetColumns = `id, symbol, name, quote_currency, external_id, is_enabled, created_at`

// AssetRepository handles market asset database operations
type AssetRepository struct {
	marketDB *sql.DB
	log      zerolog.Logger
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(marketDB *sql.DB, log zerolog.Logger) *AssetRepository {
	return &AssetRepository{
		marketDB: marketDB,
		log:      log.With().Str("repo", "asset").Logger(),
	}
}

// GetBySymbol returns an asset by symbol, nil when not found
func (r *AssetRepository) GetBySymbol(symbol string) (*domain.MarketAsset, error) {
	query := "SELECT " + assetColumns + " FROM market_assets WHERE symbol = ?"

	rows, err := r.marketDB.Query(query, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to query asset by symbol: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil // Asset not found
	}

	asset, err := scanAsset(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}

	return &asset, nil
}

// GetByID returns an asset by id, nil when not found
func (r *AssetRepository) GetByID(id string) (*domain.MarketAsset, error) {
	query := "SELECT " + assetColumns + " FROM market_assets WHERE id = ?"

	rows, err := r.marketDB.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	asset, err := scanAsset(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}

	return &asset, nil
}

// GetAllEnabled returns all enabled assets ordered by symbol
func (r *AssetRepository) GetAllEnabled() ([]domain.MarketAsset, error) {
	query := "SELECT " + assetColumns + " FROM market_assets WHERE is_enabled = 1 ORDER BY symbol"

	rows, err := r.marketDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.MarketAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}

// Upsert inserts an asset or updates its mutable fields by symbol.
// Returns the stored asset (existing id preserved on update).
func (r *AssetRepository) Upsert(asset domain.MarketAsset) (*domain.MarketAsset, error) {
	asset.Symbol = strings.ToUpper(strings.TrimSpace(asset.Symbol))
	if asset.Symbol == "" {
		return nil, fmt.Errorf("asset symbol is required")
	}

	existing, err := r.GetBySymbol(asset.Symbol)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		query := `UPDATE market_assets
			SET name = ?, quote_currency = ?, external_id = ?, is_enabled = ?
			WHERE id = ?`
		_, err := r.marketDB.Exec(query,
			asset.Name, asset.QuoteCurrency, nullString(asset.ExternalID), boolToInt(asset.IsEnabled), existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update asset %s: %w", asset.Symbol, err)
		}
		asset.ID = existing.ID
		asset.CreatedAt = existing.CreatedAt
		return &asset, nil
	}

	asset.ID = uuid.New().String()
	asset.CreatedAt = time.Now().Unix()
	if asset.QuoteCurrency == "" {
		asset.QuoteCurrency = "USD"
	}

	query := `INSERT INTO market_assets (id, symbol, name, quote_currency, external_id, is_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.marketDB.Exec(query,
		asset.ID, asset.Symbol, asset.Name, asset.QuoteCurrency,
		nullString(asset.ExternalID), boolToInt(asset.IsEnabled), asset.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert asset %s: %w", asset.Symbol, err)
	}

	return &asset, nil
}

// scanAsset scans a market asset row
func scanAsset(rows *sql.Rows) (domain.MarketAsset, error) {
	var asset domain.MarketAsset
	var externalID sql.NullString
	var isEnabled int

	err := rows.Scan(
		&asset.ID,
		&asset.Symbol,
		&asset.Name,
		&asset.QuoteCurrency,
		&externalID,
		&isEnabled,
		&asset.CreatedAt,
	)
	if err != nil {
		return domain.MarketAsset{}, err
	}

	asset.ExternalID = externalID.String
	asset.IsEnabled = isEnabled != 0

	return asset, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
