package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	dbconf "github.com/amirphl/crossover-backtester/internal/db/conf"
	"github.com/amirphl/crossover-backtester/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) *Default {
	t.Helper()
	cfg, cleanup := dbconf.NewTestConfig(t)
	require.NotNil(t, cfg)
	t.Cleanup(cleanup)

	p, err := New(*cfg)
	require.NoError(t, err)
	return p
}

func TestPostgresSchema(t *testing.T) {
	p := setupPostgres(t)

	_, err := p.GetDB().Exec(`
		INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, source)
		VALUES ('BTC-USDT', '1m', '2022-01-01 00:00:00', 10000, 10100, 9900, 10050, 1.5, 'test')`)
	require.NoError(t, err)

	_, err = p.GetDB().Exec(`
		INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, source)
		VALUES ('BTC-USDT', '1m', '2022-01-01 00:00:00', 10000, 10100, 9900, 10050, 1.5, 'test')`)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "duplicate key value violates unique constraint"), err.Error())

	// Schema statements are idempotent.
	assert.NoError(t, p.Migrate(context.Background()))
}

func TestPostgresCandles(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 11, 13, 55, 0, 0, time.UTC)
	candles := testCandles(base, 5)
	require.NoError(t, p.SaveCandles(ctx, candles))

	got, err := p.GetCandles(ctx, "BTC-USDT", "1m", "", base.Add(time.Minute), base.Add(4*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, base.Add(time.Minute).Equal(got[0].Timestamp))
	assert.Equal(t, candles[1].Close, got[0].Close)
	assert.Equal(t, "binance", got[0].Source)

	// upsert replaces values
	updated := candles[1]
	updated.Close = updated.High
	require.NoError(t, p.SaveCandles(ctx, []candle.Candle{updated}))
	got, err = p.GetCandles(ctx, "BTC-USDT", "1m", "binance", base.Add(time.Minute), base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, updated.High, got[0].Close)

	n, err := p.GetCandleCount(ctx, "BTC-USDT", "1m", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, p.DeleteCandles(ctx, "BTC-USDT", "1m"))
	n, err = p.GetCandleCount(ctx, "BTC-USDT", "1m", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresSaveCandlesRejectsInvalid(t *testing.T) {
	p := setupPostgres(t)
	bad := testCandles(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	bad[0].Symbol = ""
	assert.Error(t, p.SaveCandles(context.Background(), bad))
}

func TestPostgresEvents(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, p.LogEvent(ctx, journal.Event{Time: now, Type: journal.TypeDownload, Description: "d", Data: map[string]any{"bars": float64(3)}}))
	require.NoError(t, p.LogEvent(ctx, journal.Event{Time: now.Add(time.Second), Type: journal.TypeBacktest, Description: "b"}))

	all, err := p.GetEvents(ctx, "", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, journal.TypeDownload, all[0].Type)
	assert.Equal(t, float64(3), all[0].Data["bars"])

	downloads, err := p.GetEvents(ctx, journal.TypeDownload, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, downloads, 1)
}
