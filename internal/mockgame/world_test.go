package mockgame_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/gameapi"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/levels"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/internal/mockgame"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func newClient(url string) *gameapi.Client {
	return gameapi.NewClient(url,
		gameapi.WithRequestDelay(0),
		gameapi.WithMaxRetries(0),
		gameapi.WithTimeout(2*time.Second),
	)
}

func toProfile(t *testing.T, p mockgame.Profile) model.PlayerBoostProfile {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	profile, issues, err := levels.ParseProfile(raw)
	require.NoError(t, err)
	require.Empty(t, issues)
	return profile
}

func TestProfileFor_RoundTripsLevels(t *testing.T) {
	calc := levels.NewCalculator()
	for _, g := range mockgame.NewWorld(mockgame.WithSeed(7)).Guilds() {
		nexus, study := calc.Levels(toProfile(t, mockgame.ProfileFor(g)))
		assert.Equal(t, g.NexusLevel, nexus, g.Name)
		assert.Equal(t, g.StudyLevel, study, g.Name)
	}
}

func TestHandler_ServesDecodableAPI(t *testing.T) {
	world := mockgame.NewWorld(mockgame.WithGuildCount(4))
	require.True(t, world.SetLevels("Phoenix Legends", 900, 450))

	srv := httptest.NewServer(world.Handler())
	defer srv.Close()
	client := newClient(srv.URL)
	ctx := context.Background()

	guilds, err := client.FetchGuildList(ctx)
	require.NoError(t, err)
	require.Len(t, guilds, 4)
	assert.Equal(t, "Phoenix Legends", guilds[0].Name)

	profile, err := client.FetchPlayer(ctx, guilds[0].OwnerID)
	require.NoError(t, err)
	nexus, study := levels.NewCalculator().Levels(profile)
	assert.Equal(t, int64(900), nexus)
	assert.Equal(t, int64(450), study)

	quotes, err := client.FetchMarket(ctx)
	require.NoError(t, err)
	assert.Len(t, quotes, len(gameapi.ItemIDs()))
	for _, q := range quotes {
		assert.True(t, q.SellPrice.GreaterThan(q.BuyPrice), q.ItemName)
	}
}

func TestHandler_FailureInjection(t *testing.T) {
	world := mockgame.NewWorld(mockgame.WithGuildCount(2))
	srv := httptest.NewServer(world.Handler())
	defer srv.Close()
	client := newClient(srv.URL)
	ctx := context.Background()

	world.SetGuildListDown(true)
	_, err := client.FetchGuildList(ctx)
	require.ErrorIs(t, err, gameapi.ErrUnavailable)
	world.SetGuildListDown(false)

	owner := world.Guilds()[0].OwnerID
	world.SetOwnerFailing(owner, true)
	_, err = client.FetchPlayer(ctx, owner)
	require.ErrorIs(t, err, gameapi.ErrUnavailable)

	resp, err := http.Get(srv.URL + "/players/not-a-number")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	world.SetDuplicateEntries(true)
	guilds, err := client.FetchGuildList(ctx)
	require.NoError(t, err)
	require.Len(t, guilds, 3)
	assert.Equal(t, guilds[0].Name, guilds[2].Name)
	assert.NotEqual(t, guilds[0].ID, guilds[2].ID)
}

func TestAdvance_NeverLowersLevels(t *testing.T) {
	world := mockgame.NewWorld(mockgame.WithGuildCount(8))
	before := map[string]mockgame.Guild{}
	for _, g := range world.Guilds() {
		before[g.Name] = g
	}

	world.Advance()

	for _, g := range world.Guilds() {
		assert.GreaterOrEqual(t, g.NexusLevel, before[g.Name].NexusLevel)
		assert.GreaterOrEqual(t, g.StudyLevel, before[g.Name].StudyLevel)
	}
}
