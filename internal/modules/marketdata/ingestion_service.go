package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// AssetLister is the subset of the universe repository the ingestion needs
type AssetLister interface {
	GetAllEnabled() ([]domain.MarketAsset, error)
}

// OHLCFetcher fetches candles for one coin
type OHLCFetcher interface {
	GetOHLC(ctx context.Context, coinID, vsCurrency string, days int) ([]domain.Candle, error)
}

// IngestionService pulls fresh candles for every enabled asset
type IngestionService struct {
	assets     AssetLister
	candles    *CandleRepository
	fetcher    OHLCFetcher
	delay      time.Duration // inter-asset rate limit delay
	candleDays int
	log        zerolog.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(assets AssetLister, candles *CandleRepository, fetcher OHLCFetcher, delay time.Duration, candleDays int, log zerolog.Logger) *IngestionService {
	if candleDays <= 0 {
		candleDays = 1
	}
	return &IngestionService{
		assets:     assets,
		candles:    candles,
		fetcher:    fetcher,
		delay:      delay,
		candleDays: candleDays,
		log:        log.With().Str("service", "ingestion").Logger(),
	}
}

// IngestResult summarizes one ingestion pass
type IngestResult struct {
	AssetsProcessed int `json:"assets_processed"`
	AssetsFailed    int `json:"assets_failed"`
	CandlesInserted int `json:"candles_inserted"`
}

// IngestAllAssets fetches and stores candles for every enabled asset that has
// an external id. Per-asset fetch failures are logged and skipped; an error is
// returned only when the asset list itself cannot be read or every fetch fails.
func (s *IngestionService) IngestAllAssets(ctx context.Context) (*IngestResult, error) {
	assets, err := s.assets.GetAllEnabled()
	if err != nil {
		return nil, fmt.Errorf("failed to list assets for ingestion: %w", err)
	}

	result := &IngestResult{}
	attempted := 0

	for _, asset := range assets {
		if asset.ExternalID == "" {
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("ingestion cancelled: %w", err)
		}

		// Rate limit between assets, not before the first one
		if attempted > 0 && s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return result, fmt.Errorf("ingestion cancelled: %w", ctx.Err())
			}
		}
		attempted++

		inserted, err := s.ingestAsset(ctx, asset)
		if err != nil {
			result.AssetsFailed++
			s.log.Warn().
				Err(err).
				Str("symbol", asset.Symbol).
				Msg("Asset ingestion failed")
			continue
		}

		result.AssetsProcessed++
		result.CandlesInserted += inserted
	}

	if attempted > 0 && result.AssetsProcessed == 0 {
		return result, fmt.Errorf("ingestion failed for all %d assets", attempted)
	}

	s.log.Info().
		Int("assets", result.AssetsProcessed).
		Int("failed", result.AssetsFailed).
		Int("candles", result.CandlesInserted).
		Msg("Ingestion pass complete")

	return result, nil
}

// ingestAsset fetches, dedups, and stores candles for one asset
func (s *IngestionService) ingestAsset(ctx context.Context, asset domain.MarketAsset) (int, error) {
	vsCurrency := strings.ToLower(asset.QuoteCurrency)
	candles, err := s.fetcher.GetOHLC(ctx, asset.ExternalID, vsCurrency, s.candleDays)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}

	existing, err := s.candles.GetExistingTimestamps(asset.ID)
	if err != nil {
		return 0, err
	}

	fresh := make([]domain.Candle, 0, len(candles))
	for _, c := range candles {
		if _, seen := existing[c.TimestampUTC]; seen {
			continue
		}
		c.MarketAssetID = asset.ID
		fresh = append(fresh, c)
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	return s.candles.BulkInsert(fresh)
}
