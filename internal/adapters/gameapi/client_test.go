package gameapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/gameapi"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func newTestClient(url string) *gameapi.Client {
	return gameapi.NewClient(url,
		gameapi.WithRequestDelay(0),
		gameapi.WithBackoff(time.Millisecond, 5*time.Millisecond),
		gameapi.WithTimeout(time.Second),
	)
}

func TestFetchGuildList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/guilds", r.URL.Path)
		_, _ = w.Write([]byte(`{"guilds": [
			{"id": 1, "ownerId": 11, "name": "Alpha", "level": 40, "totalUpgrades": 900},
			{"ID": 2, "OwnerID": 22, "Name": "Beta", "Level": 30, "TotalUpgrades": 500},
			{"id": 3, "name": "NoOwner"},
			"garbage"
		]}`))
	}))
	defer srv.Close()

	guilds, err := newTestClient(srv.URL).FetchGuildList(context.Background())
	require.NoError(t, err)
	require.Len(t, guilds, 2)
	assert.Equal(t, "Alpha", guilds[0].Name)
	assert.Equal(t, int64(11), guilds[0].OwnerID)
	assert.Equal(t, int64(500), guilds[1].TotalUpgrades)
}

func TestFetchGuildList_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 7, "ownerId": 70, "name": "Solo"}]`))
	}))
	defer srv.Close()

	guilds, err := newTestClient(srv.URL).FetchGuildList(context.Background())
	require.NoError(t, err)
	require.Len(t, guilds, 1)
	assert.Equal(t, int64(7), guilds[0].ID)
}

func TestFetchPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/player/11", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"baseBoosts": {"30": 50, "100": 10},
			"totalBoosts": {"30": 2.5, "100": 60},
			"equipment": {"5": {"boosts": {"100": 5}}}
		}`))
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL).FetchPlayer(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.Base("30"))
	assert.Equal(t, 60.0, p.Total("100"))
}

func TestFetchPlayer_InvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchPlayer(context.Background(), 1)
	require.ErrorIs(t, err, gameapi.ErrUnavailable)
}

func TestFetchMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Buy": {"3": 90, "2": 10, "42": 5}, "Sell": {"3": "110", "bad": 1}}`))
	}))
	defer srv.Close()

	quotes, err := newTestClient(srv.URL).FetchMarket(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "Elemental Shards", quotes[0].ItemName)
	assert.True(t, quotes[0].SellPrice.IsZero())
	assert.Equal(t, gameapi.CodexItemID, quotes[1].ItemID)
	assert.Equal(t, "Codex", quotes[1].ItemName)
	assert.True(t, quotes[1].Average().Equal(decimal.NewFromInt(100)))
}

func TestRetry_ServerErrorsThenSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	guilds, err := c.FetchGuildList(context.Background())
	require.NoError(t, err)
	assert.Empty(t, guilds)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := gameapi.NewClient(srv.URL,
		gameapi.WithRequestDelay(0),
		gameapi.WithBackoff(time.Millisecond, time.Millisecond),
		gameapi.WithMaxRetries(2),
	)
	_, err := c.FetchMarket(context.Background())
	require.ErrorIs(t, err, gameapi.ErrUnavailable)
	assert.True(t, gameapi.IsUnavailable(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetry_ClientErrorFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchPlayer(context.Background(), 9)
	require.ErrorIs(t, err, gameapi.ErrUnavailable)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := gameapi.NewClient(srv.URL, gameapi.WithRequestDelay(0), gameapi.WithBackoff(time.Hour, time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchGuildList(ctx)
	require.ErrorIs(t, err, gameapi.ErrUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestItemTables(t *testing.T) {
	assert.Equal(t, "Codex", gameapi.ItemName(3))
	assert.Equal(t, "Item 999", gameapi.ItemName(999))
	assert.False(t, gameapi.Tradeable(42))
	assert.NotContains(t, gameapi.ItemIDs(), 38)
	assert.Contains(t, gameapi.Categories()["Essentials"], "Codex")
}
