package universe

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/domain"
	apptesting "github.com/agentrace/agentrace/internal/testing"
)

func newAssetRepo(t *testing.T) (*AssetRepository, func()) {
	t.Helper()
	db, cleanup := apptesting.NewTestDB(t, "market")
	return NewAssetRepository(db.Conn(), zerolog.Nop()), cleanup
}

func TestUpsertInsertsAndUpdatesBySymbol(t *testing.T) {
	repo, cleanup := newAssetRepo(t)
	defer cleanup()

	created, err := repo.Upsert(domain.MarketAsset{
		Symbol:     "btc ",
		Name:       "Bitcoin",
		ExternalID: "bitcoin",
		IsEnabled:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "BTC", created.Symbol)
	assert.Equal(t, "USD", created.QuoteCurrency)
	assert.NotEmpty(t, created.ID)

	updated, err := repo.Upsert(domain.MarketAsset{
		Symbol:     "BTC",
		Name:       "Bitcoin Core",
		ExternalID: "bitcoin",
		IsEnabled:  false,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "upsert by symbol preserves the id")
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	stored, err := repo.GetBySymbol("btc")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Bitcoin Core", stored.Name)
	assert.False(t, stored.IsEnabled)
}

func TestUpsertRequiresSymbol(t *testing.T) {
	repo, cleanup := newAssetRepo(t)
	defer cleanup()

	_, err := repo.Upsert(domain.MarketAsset{Name: "nameless"})
	assert.Error(t, err)
}

func TestGetBySymbolNotFound(t *testing.T) {
	repo, cleanup := newAssetRepo(t)
	defer cleanup()

	asset, err := repo.GetBySymbol("NOPE")
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestGetAllEnabledFiltersAndOrders(t *testing.T) {
	repo, cleanup := newAssetRepo(t)
	defer cleanup()

	for _, a := range []domain.MarketAsset{
		{Symbol: "ETH", Name: "Ethereum", IsEnabled: true},
		{Symbol: "BTC", Name: "Bitcoin", IsEnabled: true},
		{Symbol: "DOT", Name: "Polkadot", IsEnabled: false},
	} {
		_, err := repo.Upsert(a)
		require.NoError(t, err)
	}

	enabled, err := repo.GetAllEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "BTC", enabled[0].Symbol)
	assert.Equal(t, "ETH", enabled[1].Symbol)
}
