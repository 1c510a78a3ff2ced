package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

const (
	defaultHistoryHours = 720
	defaultRecentHours  = 24
)

// HistoryHandler serves guild and market history for charts.
type HistoryHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps Dependencies, l logger.Logger) *HistoryHandler {
	return &HistoryHandler{deps: deps, logger: l}
}

type guildPointDTO struct {
	Timestamp string `json:"timestamp"`
	Nexus     int64  `json:"nexus"`
	Study     int64  `json:"study"`
}

type pricePointDTO struct {
	Timestamp string  `json:"timestamp"`
	Buy       float64 `json:"buy"`
	Sell      float64 `json:"sell"`
}

type itemPricesDTO struct {
	Prices []pricePointDTO `json:"prices"`
}

type historicalResponse struct {
	GuildHistory   map[string][]guildPointDTO `json:"guild_history"`
	ItemPrices     map[string]itemPricesDTO   `json:"item_prices"`
	ItemCategories map[string][]string        `json:"item_categories"`
}

// HandleHistoricalData handles GET /api/historical-data[?hours=720].
func (h *HistoryHandler) HandleHistoricalData(w http.ResponseWriter, r *http.Request) {
	const op = "api.historical_data"

	hours, err := parseHours(r, defaultHistoryHours)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hist, err := h.deps.HistoricalData(r.Context(), hours)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, historicalResponse{
		GuildHistory:   groupGuildPoints(hist.Guilds),
		ItemPrices:     groupPricePoints(hist.Prices),
		ItemCategories: hist.Categories,
	})
}

// HandleGuildHistory handles GET /api/guild-history[?guilds=a,b&hours=24].
func (h *HistoryHandler) HandleGuildHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.guild_history"

	hours, err := parseHours(r, defaultRecentHours)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	points, err := h.deps.GuildHistory(r.Context(), parseNames(r), hours)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, groupGuildPoints(points))
}

// HandleMarketPrices handles GET /api/market-prices[?hours=24].
func (h *HistoryHandler) HandleMarketPrices(w http.ResponseWriter, r *http.Request) {
	const op = "api.market_prices"

	hours, err := parseHours(r, defaultRecentHours)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	prices, err := h.deps.MarketPrices(r.Context(), hours)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, groupPricePoints(prices))
}

func groupGuildPoints(points []model.HistoryPoint) map[string][]guildPointDTO {
	out := make(map[string][]guildPointDTO)
	for _, p := range points {
		out[p.GuildName] = append(out[p.GuildName], guildPointDTO{
			Timestamp: formatTimestamp(p.Timestamp),
			Nexus:     p.NexusLevel,
			Study:     p.StudyLevel,
		})
	}
	return out
}

func groupPricePoints(points []model.PricePoint) map[string]itemPricesDTO {
	out := make(map[string]itemPricesDTO)
	for _, p := range points {
		item := out[p.ItemName]
		item.Prices = append(item.Prices, pricePointDTO{
			Timestamp: formatTimestamp(p.Timestamp),
			Buy:       p.BuyPrice.InexactFloat64(),
			Sell:      p.SellPrice.InexactFloat64(),
		})
		out[p.ItemName] = item
	}
	return out
}

// parseHours reads ?hours, falling back to def when absent. Range checks
// happen in the service.
func parseHours(r *http.Request, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("hours"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: hours must be an integer, got %q", ErrBadRequest, raw)
	}
	return n, nil
}

// parseNames accepts both ?guilds=a,b and repeated ?guilds= values.
func parseNames(r *http.Request) []string {
	var names []string
	for _, v := range r.URL.Query()["guilds"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}
