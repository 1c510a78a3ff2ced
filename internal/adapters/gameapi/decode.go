package gameapi

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

// field returns the first key present on obj.
func field(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := obj.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// decodeGuilds accepts a bare array or an object holding it under "guilds".
// Entries without an id, owner or name are skipped and counted.
func decodeGuilds(body []byte) ([]model.Guild, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, ErrBadResponse
	}
	root := gjson.ParseBytes(body)
	list := root
	if root.IsObject() {
		list = field(root, "guilds", "Guilds", "data")
	}
	if !list.IsArray() {
		return nil, 0, fmt.Errorf("%w: guild list is not an array", ErrBadResponse)
	}

	var (
		guilds  []model.Guild
		skipped int
	)
	list.ForEach(func(_, entry gjson.Result) bool {
		g := model.Guild{
			ID:            field(entry, "id", "ID", "Id").Int(),
			OwnerID:       field(entry, "ownerId", "OwnerID", "owner_id").Int(),
			Name:          field(entry, "name", "Name").String(),
			Level:         field(entry, "level", "Level").Int(),
			TotalUpgrades: field(entry, "totalUpgrades", "TotalUpgrades", "total_upgrades").Int(),
		}
		if !entry.IsObject() || g.ID <= 0 || g.OwnerID <= 0 || g.Name == "" {
			skipped++
			return true
		}
		guilds = append(guilds, g)
		return true
	})
	return guilds, skipped, nil
}

// decodeMarket reads {"Buy": {"<id>": price}, "Sell": {...}}. Unknown sides
// quote as zero; untradeable ids and negative prices are skipped.
func decodeMarket(body []byte) ([]model.MarketQuote, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, ErrBadResponse
	}
	root := gjson.ParseBytes(body)
	buy := field(root, "Buy", "buy")
	sell := field(root, "Sell", "sell")
	if !buy.IsObject() && !sell.IsObject() {
		return nil, 0, fmt.Errorf("%w: no buy or sell prices", ErrBadResponse)
	}

	quotes := map[int]*model.MarketQuote{}
	skipped := 0
	collect := func(side gjson.Result, set func(*model.MarketQuote, decimal.Decimal)) {
		side.ForEach(func(key, value gjson.Result) bool {
			id, err := strconv.Atoi(key.String())
			if err != nil || !Tradeable(id) {
				skipped++
				return true
			}
			price, err := decimal.NewFromString(value.String())
			if err != nil || price.IsNegative() {
				skipped++
				return true
			}
			q, ok := quotes[id]
			if !ok {
				q = &model.MarketQuote{ItemID: id, ItemName: ItemName(id)}
				quotes[id] = q
			}
			set(q, price)
			return true
		})
	}
	collect(buy, func(q *model.MarketQuote, p decimal.Decimal) { q.BuyPrice = p })
	collect(sell, func(q *model.MarketQuote, p decimal.Decimal) { q.SellPrice = p })

	ids := make([]int, 0, len(quotes))
	for id := range quotes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]model.MarketQuote, 0, len(ids))
	for _, id := range ids {
		out = append(out, *quotes[id])
	}
	return out, skipped, nil
}
