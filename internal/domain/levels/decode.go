package levels

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
)

// Issue describes a payload fragment that was skipped while decoding.
type Issue struct {
	Path   string
	Reason string
}

func (i Issue) String() string { return i.Path + ": " + i.Reason }

// ParseProfile decodes an owner profile payload. Malformed fragments are
// skipped and reported; missing top-level keys decode as empty maps.
func ParseProfile(raw []byte) (model.PlayerBoostProfile, []Issue, error) {
	if !gjson.ValidBytes(raw) {
		return model.PlayerBoostProfile{}, nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return model.PlayerBoostProfile{}, nil, fmt.Errorf("%w: top level is %s", ErrInvalidPayload, root.Type)
	}

	var issues []Issue
	p := model.PlayerBoostProfile{
		BaseBoosts:  decodeBoosts(field(root, "baseBoosts", "BaseBoosts"), "baseBoosts", &issues),
		TotalBoosts: decodeBoosts(field(root, "totalBoosts", "TotalBoosts"), "totalBoosts", &issues),
		Equipment:   decodeEquipment(field(root, "equipment", "Equipment"), &issues),
	}
	return p, issues, nil
}

// field returns the first key present on obj.
func field(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := obj.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// decodeBoosts reads a {"id": number} object. Non-numeric values are skipped.
func decodeBoosts(r gjson.Result, path string, issues *[]Issue) map[string]float64 {
	out := map[string]float64{}
	if !r.Exists() || r.Type == gjson.Null {
		return out
	}
	if !r.IsObject() {
		*issues = append(*issues, Issue{Path: path, Reason: "not an object"})
		return out
	}
	r.ForEach(func(key, value gjson.Result) bool {
		v, ok := number(value)
		if !ok {
			*issues = append(*issues, Issue{Path: path + "." + key.String(), Reason: "not a number"})
			return true
		}
		out[key.String()] = v
		return true
	})
	return out
}

// decodeEquipment reads slot objects keyed "1".."8", or an array indexed from
// slot 1.
func decodeEquipment(r gjson.Result, issues *[]Issue) map[int]model.Equipment {
	out := map[int]model.Equipment{}
	if !r.Exists() || r.Type == gjson.Null {
		return out
	}

	switch {
	case r.IsObject():
		r.ForEach(func(key, value gjson.Result) bool {
			path := "equipment." + key.String()
			slot, err := strconv.Atoi(key.String())
			if err != nil || slot < model.MinEquipmentSlot || slot > model.MaxEquipmentSlot {
				*issues = append(*issues, Issue{Path: path, Reason: "unknown slot"})
				return true
			}
			if item, ok := decodeItem(value, path, issues); ok {
				out[slot] = item
			}
			return true
		})
	case r.IsArray():
		for i, value := range r.Array() {
			slot := i + model.MinEquipmentSlot
			path := "equipment." + strconv.Itoa(slot)
			if slot > model.MaxEquipmentSlot {
				*issues = append(*issues, Issue{Path: path, Reason: "unknown slot"})
				continue
			}
			if value.Type == gjson.Null {
				continue
			}
			if item, ok := decodeItem(value, path, issues); ok {
				out[slot] = item
			}
		}
	default:
		*issues = append(*issues, Issue{Path: "equipment", Reason: "not an object"})
	}
	return out
}

func decodeItem(value gjson.Result, path string, issues *[]Issue) (model.Equipment, bool) {
	if !value.IsObject() {
		*issues = append(*issues, Issue{Path: path, Reason: "item is not an object"})
		return model.Equipment{}, false
	}
	boosts := field(value, "boosts", "Boosts")
	if boosts.Exists() && boosts.Type != gjson.Null && !boosts.IsObject() {
		*issues = append(*issues, Issue{Path: path + ".boosts", Reason: "not an object"})
		return model.Equipment{}, false
	}
	return model.Equipment{
		Boosts:    decodeBoosts(boosts, path+".boosts", issues),
		Infusions: decodeInfusions(field(value, "infusions", "Infusions")),
	}, true
}

// decodeInfusions accepts a count or a per-type object. Anything else is 0.
func decodeInfusions(r gjson.Result) model.Infusions {
	if v, ok := number(r); ok {
		return model.CountInfusions(v)
	}
	if r.IsObject() {
		m := map[string]float64{}
		r.ForEach(func(key, value gjson.Result) bool {
			if v, ok := number(value); ok {
				m[key.String()] = v
			}
			return true
		})
		return model.PerTypeInfusions(m)
	}
	return model.Infusions{}
}

// number accepts JSON numbers and numeric strings.
func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		v, err := strconv.ParseFloat(r.Str, 64)
		return v, err == nil
	default:
		return 0, false
	}
}
