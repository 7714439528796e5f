package model

import (
	"encoding/json"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
)

// Transaction types present in the price feed.
const (
	TxRetail  = "retail"
	TxBuylist = "buylist"
)

var dateKeyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DateMap maps a YYYY-MM-DD date to a price. Dates compare lexicographically,
// which for this format is chronological order.
type DateMap map[string]float64

// FinishMap maps a finish variant (normal, foil, etched) to its dated prices.
type FinishMap map[string]DateMap

// VendorPrices holds one vendor's retail and buylist trees.
type VendorPrices struct {
	Retail  FinishMap `json:"retail,omitempty"`
	Buylist FinishMap `json:"buylist,omitempty"`
}

// ByType returns the finish map for a transaction type, or nil.
func (v VendorPrices) ByType(tx string) FinishMap {
	switch tx {
	case TxRetail:
		return v.Retail
	case TxBuylist:
		return v.Buylist
	default:
		return nil
	}
}

// PriceHistory is the full vendor -> transaction-type -> finish -> date -> price
// tree. The same shape serves both the per-run snapshot (one date per leaf) and
// the accumulated history stored long-term (all dates ever observed).
type PriceHistory map[string]VendorPrices

// ParsePriceHistory decodes and validates one feed entry's price tree. The feed
// is untrusted: date keys must match YYYY-MM-DD and values must be non-negative.
// A non-conforming entry is rejected whole so malformed data never reaches
// storage.
func ParsePriceHistory(raw json.RawMessage) (PriceHistory, error) {
	var tree map[string]map[string]map[string]map[string]float64
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, eris.Wrap(err, "prices: decode entry")
	}

	out := make(PriceHistory, len(tree))
	for vendor, byType := range tree {
		var vp VendorPrices
		for tx, byFinish := range byType {
			if tx != TxRetail && tx != TxBuylist {
				return nil, eris.Errorf("prices: vendor %s: unknown transaction type %q", vendor, tx)
			}
			fm := make(FinishMap, len(byFinish))
			for finish, dates := range byFinish {
				dm := make(DateMap, len(dates))
				for date, price := range dates {
					if !dateKeyRe.MatchString(date) {
						return nil, eris.Errorf("prices: vendor %s: bad date key %q", vendor, date)
					}
					if price < 0 {
						return nil, eris.Errorf("prices: vendor %s: negative price on %s", vendor, date)
					}
					dm[date] = price
				}
				if len(dm) > 0 {
					fm[finish] = dm
				}
			}
			switch tx {
			case TxRetail:
				vp.Retail = fm
			case TxBuylist:
				vp.Buylist = fm
			}
		}
		out[vendor] = vp
	}
	return out, nil
}

// Latest reduces a history to its per-(vendor, type, finish) snapshot: for each
// leaf present, exactly the lexicographically greatest date survives. Vendors
// and finishes outside the given sets are dropped; empty vendors disappear.
func (h PriceHistory) Latest(vendors, finishes map[string]bool) PriceHistory {
	out := make(PriceHistory)
	for vendor, vp := range h {
		if !vendors[vendor] {
			continue
		}
		latest := VendorPrices{
			Retail:  latestByFinish(vp.Retail, finishes),
			Buylist: latestByFinish(vp.Buylist, finishes),
		}
		if len(latest.Retail) == 0 && len(latest.Buylist) == 0 {
			continue
		}
		out[vendor] = latest
	}
	return out
}

func latestByFinish(fm FinishMap, finishes map[string]bool) FinishMap {
	out := make(FinishMap)
	for finish, dates := range fm {
		if !finishes[finish] || len(dates) == 0 {
			continue
		}
		var maxDate string
		for date := range dates {
			if date > maxDate {
				maxDate = date
			}
		}
		out[finish] = DateMap{maxDate: dates[maxDate]}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeHistory deep-merges incoming into existing: every (vendor, type, finish,
// date) leaf of incoming is set in the result, all other existing dates are
// retained untouched. Neither argument is mutated. The operation is additive
// and idempotent, which is what makes pipeline re-runs converge.
func MergeHistory(existing, incoming PriceHistory) PriceHistory {
	out := make(PriceHistory, len(existing)+len(incoming))
	for vendor, vp := range existing {
		out[vendor] = VendorPrices{
			Retail:  copyFinishMap(vp.Retail),
			Buylist: copyFinishMap(vp.Buylist),
		}
	}
	for vendor, vp := range incoming {
		merged := out[vendor]
		merged.Retail = mergeFinishMap(merged.Retail, vp.Retail)
		merged.Buylist = mergeFinishMap(merged.Buylist, vp.Buylist)
		out[vendor] = merged
	}
	return out
}

func copyFinishMap(fm FinishMap) FinishMap {
	if fm == nil {
		return nil
	}
	out := make(FinishMap, len(fm))
	for finish, dates := range fm {
		dm := make(DateMap, len(dates))
		for date, price := range dates {
			dm[date] = price
		}
		out[finish] = dm
	}
	return out
}

func mergeFinishMap(dst, src FinishMap) FinishMap {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(FinishMap, len(src))
	}
	for finish, dates := range src {
		dm := dst[finish]
		if dm == nil {
			dm = make(DateMap, len(dates))
			dst[finish] = dm
		}
		for date, price := range dates {
			dm[date] = price
		}
	}
	return dst
}

// SortedDates returns the map's date keys in ascending order.
func (d DateMap) SortedDates() []string {
	dates := make([]string, 0, len(d))
	for date := range d {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// LatestPoint returns the greatest date and its price, or ok=false when empty.
func (d DateMap) LatestPoint() (date string, price float64, ok bool) {
	for k, v := range d {
		if k > date {
			date, price, ok = k, v, true
		}
	}
	return date, price, ok
}
