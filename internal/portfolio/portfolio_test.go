package portfolio

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfund/meridian/internal/database"
	"github.com/meridianfund/meridian/internal/domain"
)

func TestApplyBuyRecomputesAverageCost(t *testing.T) {
	p := New(100000)

	require.NoError(t, p.ApplyBuy("AAPL", 100, 100))
	require.NoError(t, p.ApplyBuy("AAPL", 100, 200))

	pos := p.Position("AAPL")
	require.NotNil(t, pos)
	assert.InDelta(t, 200, pos.Quantity, 0.001)
	assert.InDelta(t, 150, pos.AverageCost, 0.001)
	assert.InDelta(t, 70000, p.Cash(), 0.001)
}

func TestApplyBuyNeverOverdrawsCash(t *testing.T) {
	p := New(1000)

	err := p.ApplyBuy("AAPL", 100, 100)
	require.Error(t, err)
	assert.InDelta(t, 1000, p.Cash(), 0.001)
	assert.Nil(t, p.Position("AAPL"))
}

func TestApplySellBooksRealizedPnL(t *testing.T) {
	p := New(100000)
	require.NoError(t, p.ApplyBuy("AAPL", 100, 100))

	require.NoError(t, p.ApplySell("AAPL", 60, 150))

	assert.InDelta(t, 60*(150-100), p.RealizedPnL(), 0.001)
	pos := p.Position("AAPL")
	require.NotNil(t, pos)
	assert.InDelta(t, 40, pos.Quantity, 0.001)
}

func TestApplySellNeverGoesShort(t *testing.T) {
	p := New(100000)
	require.NoError(t, p.ApplyBuy("AAPL", 10, 100))

	err := p.ApplySell("AAPL", 20, 100)
	require.Error(t, err)
	pos := p.Position("AAPL")
	require.NotNil(t, pos)
	assert.InDelta(t, 10, pos.Quantity, 0.001)
}

func TestApplySellFullExitRemovesPosition(t *testing.T) {
	p := New(100000)
	require.NoError(t, p.ApplyBuy("AAPL", 10, 100))
	require.NoError(t, p.ApplySell("AAPL", 10, 120))

	assert.Nil(t, p.Position("AAPL"))
	assert.Empty(t, p.Positions())
}

func TestTotalValueMarksToMarket(t *testing.T) {
	p := New(100000)
	require.NoError(t, p.ApplyBuy("AAPL", 100, 100))

	total := p.TotalValue(map[string]float64{"AAPL": 120})
	assert.InDelta(t, 90000+12000, total, 0.001)

	// Missing price falls back to average cost.
	total = p.TotalValue(nil)
	assert.InDelta(t, 100000, total, 0.001)
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestRepositorySaveAndLoadRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	p := New(100000)
	require.NoError(t, p.ApplyBuy("AAPL", 50, 200))
	require.NoError(t, p.ApplyBuy("MSFT", 20, 300))
	require.NoError(t, repo.Save(p))

	restored := New(0)
	found, err := repo.Load(restored)
	require.NoError(t, err)
	require.True(t, found)

	assert.InDelta(t, p.Cash(), restored.Cash(), 0.001)
	pos := restored.Position("AAPL")
	require.NotNil(t, pos)
	assert.InDelta(t, 50, pos.Quantity, 0.001)
	assert.InDelta(t, 200, pos.AverageCost, 0.001)
	assert.Len(t, restored.Positions(), 2)
}

func TestRepositoryLoadEmptyReportsFalse(t *testing.T) {
	repo := newTestRepo(t)

	p := New(5000)
	found, err := repo.Load(p)
	require.NoError(t, err)
	assert.False(t, found)
	assert.InDelta(t, 5000, p.Cash(), 0.001)
}

func TestRestoreReplacesState(t *testing.T) {
	p := New(1000)
	p.Restore(2500, 100, []domain.Position{{Ticker: "AAPL", Quantity: 5, AverageCost: 90}})

	assert.InDelta(t, 2500, p.Cash(), 0.001)
	assert.InDelta(t, 100, p.RealizedPnL(), 0.001)
	require.NotNil(t, p.Position("AAPL"))
}
