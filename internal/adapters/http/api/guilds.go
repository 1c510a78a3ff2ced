package api

import (
	"fmt"
	"net/http"
	"time"

	service "github.com/GungHo1205/manarion-guild-stats/internal/app"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/progress"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

// GuildsHandler serves the current ranking and daily baselines.
type GuildsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewGuildsHandler creates a new guilds handler.
func NewGuildsHandler(deps Dependencies, l logger.Logger) *GuildsHandler {
	return &GuildsHandler{deps: deps, logger: l}
}

type guildDTO struct {
	GuildName      string `json:"GuildName"`
	GuildID        int64  `json:"GuildID"`
	GuildLevel     int64  `json:"GuildLevel"`
	NexusLevel     int64  `json:"NexusLevel"`
	StudyLevel     int64  `json:"StudyLevel"`
	TotalUpgrades  int64  `json:"TotalUpgrades"`
	NexusProgress  int64  `json:"NexusProgress"`
	StudyProgress  int64  `json:"StudyProgress"`
	NexusCodexCost int64  `json:"NexusCodexCost"`
	StudyCodexCost int64  `json:"StudyCodexCost"`
	TotalCodexCost int64  `json:"TotalCodexCost"`
	InBaseline     bool   `json:"InBaseline"`
}

type dustDTO struct {
	TotalCodex     int64   `json:"total_codex"`
	FormattedDust  string  `json:"formatted_dust"`
	FormattedPrice string  `json:"formatted_price"`
	AveragePrice   float64 `json:"average_price"`
	TotalDust      float64 `json:"total_dust"`
}

type freshnessDTO struct {
	GuildDataFresh  bool `json:"guild_data_fresh"`
	MarketDataFresh bool `json:"market_data_fresh"`
}

type guildDataResponse struct {
	Guilds            []guildDTO   `json:"guilds"`
	DustSpending      dustDTO      `json:"dustSpending"`
	LastUpdated       string       `json:"lastUpdated"`
	BaselineDate      string       `json:"baselineDate"`
	BaselineCreatedAt *string      `json:"baselineCreatedAt"`
	TotalGuilds       int          `json:"totalGuilds"`
	DataFreshness     freshnessDTO `json:"dataFreshness"`
}

type levelPairDTO struct {
	NexusLevel int64 `json:"NexusLevel"`
	StudyLevel int64 `json:"StudyLevel"`
}

type baselineResponse struct {
	Date      string                  `json:"date"`
	CreatedAt *string                 `json:"created_at"`
	Guilds    map[string]levelPairDTO `json:"guilds"`
}

// HandleGuildData handles GET /api/guild-data.
func (h *GuildsHandler) HandleGuildData(w http.ResponseWriter, r *http.Request) {
	const op = "api.guild_data"

	data, err := h.deps.GuildData(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuildDataResponse(data))
}

func toGuildDataResponse(data service.GuildData) guildDataResponse {
	snap := data.Snapshot
	guilds := make([]guildDTO, 0, len(snap.Records))
	for _, rec := range snap.Records {
		guilds = append(guilds, guildDTO{
			GuildName:      rec.GuildName,
			GuildID:        rec.GuildID,
			GuildLevel:     rec.GuildLevel,
			NexusLevel:     rec.NexusLevel,
			StudyLevel:     rec.StudyLevel,
			TotalUpgrades:  rec.TotalUpgrades,
			NexusProgress:  rec.NexusProgress,
			StudyProgress:  rec.StudyProgress,
			NexusCodexCost: rec.NexusCodexCost,
			StudyCodexCost: rec.StudyCodexCost,
			TotalCodexCost: rec.TotalCodexCost,
			InBaseline:     rec.InBaseline,
		})
	}

	return guildDataResponse{
		Guilds: guilds,
		DustSpending: dustDTO{
			TotalCodex:     data.Dust.TotalCodex,
			FormattedDust:  progress.FormatCurrency(data.Dust.TotalDust),
			FormattedPrice: progress.FormatCurrency(data.Dust.CodexPrice),
			AveragePrice:   data.Dust.CodexPrice.InexactFloat64(),
			TotalDust:      data.Dust.TotalDust.InexactFloat64(),
		},
		LastUpdated:       formatTimestamp(snap.CollectedAt),
		BaselineDate:      snap.BaselineDate.String(),
		BaselineCreatedAt: optionalTimestamp(snap.BaselineCreatedAt),
		TotalGuilds:       len(guilds),
		DataFreshness: freshnessDTO{
			GuildDataFresh:  data.DataFresh,
			MarketDataFresh: data.MarketFresh,
		},
	}
}

// HandleDailyBaseline handles GET /api/daily-baseline[?date=YYYY-MM-DD].
func (h *GuildsHandler) HandleDailyBaseline(w http.ResponseWriter, r *http.Request) {
	const op = "api.daily_baseline"

	var date model.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrBadRequest))
			return
		}
		date = d
	}

	b, err := h.deps.DailyBaseline(r.Context(), date)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}

	guilds := make(map[string]levelPairDTO, len(b.Guilds))
	for name, p := range b.Guilds {
		guilds[name] = levelPairDTO{NexusLevel: p.NexusLevel, StudyLevel: p.StudyLevel}
	}
	writeJSON(w, http.StatusOK, baselineResponse{
		Date:      b.Date.String(),
		CreatedAt: optionalTimestamp(b.CreatedAt),
		Guilds:    guilds,
	})
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTimestamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := formatTimestamp(t)
	return &s
}
