package mockgame

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type guildEntry struct {
	ID            int64  `json:"id"`
	OwnerID       int64  `json:"ownerId"`
	Name          string `json:"name"`
	Level         int64  `json:"level"`
	TotalUpgrades int64  `json:"totalUpgrades"`
}

// Handler serves /guilds, /player/{id}, /players/{id} and /market.
func (w *World) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/guilds", w.handleGuilds)
	r.Get("/player/{id}", w.handlePlayer)
	r.Get("/players/{id}", w.handlePlayer)
	r.Get("/market", w.handleMarket)
	return r
}

func (w *World) handleGuilds(rw http.ResponseWriter, _ *http.Request) {
	w.mu.RLock()
	down, dup := w.guildListDown, w.duplicate
	w.mu.RUnlock()
	if down {
		http.Error(rw, "maintenance", http.StatusServiceUnavailable)
		return
	}

	guilds := w.Guilds()
	out := make([]guildEntry, 0, len(guilds)+1)
	for _, g := range guilds {
		out = append(out, guildEntry{ID: g.ID, OwnerID: g.OwnerID, Name: g.Name, Level: g.Level, TotalUpgrades: g.TotalUpgrades})
	}
	if dup && len(out) > 0 {
		d := out[0]
		d.ID += 100_000
		out = append(out, d)
	}
	writeJSON(rw, map[string]any{"guilds": out})
}

func (w *World) handlePlayer(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(rw, "bad player id", http.StatusBadRequest)
		return
	}

	w.mu.RLock()
	failing := w.failingOwners[id]
	w.mu.RUnlock()
	if failing {
		http.Error(rw, "upstream error", http.StatusInternalServerError)
		return
	}

	for _, g := range w.Guilds() {
		if g.OwnerID == id {
			writeJSON(rw, ProfileFor(g))
			return
		}
	}
	http.Error(rw, "player not found", http.StatusNotFound)
}

func (w *World) handleMarket(rw http.ResponseWriter, _ *http.Request) {
	w.mu.RLock()
	buy := make(map[string]int64, len(w.prices))
	sell := make(map[string]int64, len(w.prices))
	for id, p := range w.prices {
		key := strconv.Itoa(id)
		buy[key], sell[key] = p[0], p[1]
	}
	w.mu.RUnlock()

	writeJSON(rw, map[string]any{"Buy": buy, "Sell": sell})
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}
