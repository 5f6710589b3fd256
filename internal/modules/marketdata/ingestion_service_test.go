package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/domain"
	apptesting "github.com/agentrace/agentrace/internal/testing"
)

type stubAssetLister []domain.MarketAsset

func (s stubAssetLister) GetAllEnabled() ([]domain.MarketAsset, error) {
	return s, nil
}

type stubFetcher struct {
	candles map[string][]domain.Candle
	errs    map[string]error
	calls   int
}

func (f *stubFetcher) GetOHLC(ctx context.Context, coinID, vsCurrency string, days int) ([]domain.Candle, error) {
	f.calls++
	if err, ok := f.errs[coinID]; ok {
		return nil, err
	}
	return f.candles[coinID], nil
}

func newIngestionFixture(t *testing.T, assets stubAssetLister, fetcher *stubFetcher) (*IngestionService, *CandleRepository, func()) {
	t.Helper()

	db, cleanup := apptesting.NewTestDB(t, "market")
	log := zerolog.Nop()
	repo := NewCandleRepository(db.Conn(), log)

	for _, asset := range assets {
		_, err := db.Conn().Exec(
			"INSERT INTO market_assets (id, symbol, name, external_id, created_at) VALUES (?, ?, ?, ?, 0)",
			asset.ID, asset.Symbol, asset.Symbol, asset.ExternalID)
		require.NoError(t, err)
	}

	svc := NewIngestionService(assets, repo, fetcher, 0, 1, log)
	return svc, repo, cleanup
}

func TestIngestAllAssetsStoresCandles(t *testing.T) {
	assets := stubAssetLister{
		{ID: "asset-btc", Symbol: "BTC", ExternalID: "bitcoin", QuoteCurrency: "USD", IsEnabled: true},
	}
	fetcher := &stubFetcher{candles: map[string][]domain.Candle{
		"bitcoin": {
			{TimestampUTC: 100, Open: 1, High: 1, Low: 1, Close: 40000},
			{TimestampUTC: 200, Open: 1, High: 1, Low: 1, Close: 42000},
		},
	}}

	svc, repo, cleanup := newIngestionFixture(t, assets, fetcher)
	defer cleanup()

	result, err := svc.IngestAllAssets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.AssetsProcessed)
	assert.Equal(t, 2, result.CandlesInserted)

	count, err := repo.CountByAsset("asset-btc")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestAllAssetsIsIdempotent(t *testing.T) {
	assets := stubAssetLister{
		{ID: "asset-btc", Symbol: "BTC", ExternalID: "bitcoin", IsEnabled: true},
	}
	fetcher := &stubFetcher{candles: map[string][]domain.Candle{
		"bitcoin": {{TimestampUTC: 100, Open: 1, High: 1, Low: 1, Close: 40000}},
	}}

	svc, repo, cleanup := newIngestionFixture(t, assets, fetcher)
	defer cleanup()

	_, err := svc.IngestAllAssets(context.Background())
	require.NoError(t, err)

	// The same candle window arrives again on the next cycle
	result, err := svc.IngestAllAssets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.CandlesInserted)

	count, err := repo.CountByAsset("asset-btc")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestAllAssetsSkipsAssetsWithoutExternalID(t *testing.T) {
	assets := stubAssetLister{
		{ID: "asset-xyz", Symbol: "XYZ", IsEnabled: true},
	}
	fetcher := &stubFetcher{}

	svc, _, cleanup := newIngestionFixture(t, assets, fetcher)
	defer cleanup()

	result, err := svc.IngestAllAssets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.AssetsProcessed)
	assert.Equal(t, 0, fetcher.calls)
}

func TestIngestAllAssetsIsolatesPerAssetFailures(t *testing.T) {
	assets := stubAssetLister{
		{ID: "asset-btc", Symbol: "BTC", ExternalID: "bitcoin", IsEnabled: true},
		{ID: "asset-eth", Symbol: "ETH", ExternalID: "ethereum", IsEnabled: true},
	}
	fetcher := &stubFetcher{
		candles: map[string][]domain.Candle{
			"ethereum": {{TimestampUTC: 100, Open: 1, High: 1, Low: 1, Close: 2500}},
		},
		errs: map[string]error{"bitcoin": errors.New("rate limited")},
	}

	svc, _, cleanup := newIngestionFixture(t, assets, fetcher)
	defer cleanup()

	result, err := svc.IngestAllAssets(context.Background())
	require.NoError(t, err, "one failing asset must not fail the pass")
	assert.Equal(t, 1, result.AssetsProcessed)
	assert.Equal(t, 1, result.AssetsFailed)
}

func TestIngestAllAssetsFailsWhenEveryFetchFails(t *testing.T) {
	assets := stubAssetLister{
		{ID: "asset-btc", Symbol: "BTC", ExternalID: "bitcoin", IsEnabled: true},
	}
	fetcher := &stubFetcher{errs: map[string]error{"bitcoin": errors.New("down")}}

	svc, _, cleanup := newIngestionFixture(t, assets, fetcher)
	defer cleanup()

	_, err := svc.IngestAllAssets(context.Background())
	assert.Error(t, err)
}

func TestIngestAllAssetsHonorsCancellation(t *testing.T) {
	assets := stubAssetLister{
		{ID: "asset-btc", Symbol: "BTC", ExternalID: "bitcoin", IsEnabled: true},
	}
	fetcher := &stubFetcher{}

	svc, _, cleanup := newIngestionFixture(t, assets, fetcher)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.IngestAllAssets(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
