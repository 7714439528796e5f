// Package api serves the read-only card API over HTTP.
package api

import (
	"sort"
	"time"

	"github.com/deckhaven/cardsync/internal/model"
)

// PricePoint is one dated price.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Quote is the latest retail and buylist price for one (vendor, finish) leaf.
type Quote struct {
	Vendor     string      `json:"vendor"`
	VendorName string      `json:"vendorName"`
	Finish     string      `json:"finish"`
	Retail     *PricePoint `json:"retail,omitempty"`
	Buylist    *PricePoint `json:"buylist,omitempty"`
}

// Summary aggregates a card's current retail market across vendors.
type Summary struct {
	Low           *float64 `json:"low,omitempty"`
	Avg           *float64 `json:"avg,omitempty"`
	High          *float64 `json:"high,omitempty"`
	WeekChangePct *float64 `json:"weekChangePct,omitempty"`
	AsOf          string   `json:"asOf,omitempty"`
}

// Summarize reduces a price history to current retail low/avg/high across all
// vendor and finish leaves, plus the average week-over-week retail movement.
func Summarize(h model.PriceHistory) Summary {
	var (
		sum     Summary
		prices  []float64
		changes []float64
	)

	for _, vp := range h {
		for _, dates := range vp.Retail {
			date, price, ok := dates.LatestPoint()
			if !ok {
				continue
			}
			prices = append(prices, price)
			if date > sum.AsOf {
				sum.AsOf = date
			}
			if pct, ok := weekChange(dates, date, price); ok {
				changes = append(changes, pct)
			}
		}
	}

	if len(prices) > 0 {
		low, high, total := prices[0], prices[0], 0.0
		for _, p := range prices {
			if p < low {
				low = p
			}
			if p > high {
				high = p
			}
			total += p
		}
		avg := total / float64(len(prices))
		sum.Low, sum.Avg, sum.High = &low, &avg, &high
	}

	if len(changes) > 0 {
		total := 0.0
		for _, c := range changes {
			total += c
		}
		pct := total / float64(len(changes))
		sum.WeekChangePct = &pct
	}

	return sum
}

// weekChange compares the latest price against the most recent observation at
// least seven days older. Sparse histories without such a point report no
// movement.
func weekChange(dates model.DateMap, latestDate string, latestPrice float64) (float64, bool) {
	t, err := time.Parse("2006-01-02", latestDate)
	if err != nil {
		return 0, false
	}
	cutoff := t.AddDate(0, 0, -7).Format("2006-01-02")

	var refDate string
	var refPrice float64
	for date, price := range dates {
		if date <= cutoff && date > refDate {
			refDate, refPrice = date, price
		}
	}
	if refDate == "" || refPrice == 0 {
		return 0, false
	}
	return (latestPrice - refPrice) / refPrice * 100, true
}

// Quotes flattens a history into per-(vendor, finish) latest quotes, ordered
// by the supported vendor then finish lists so output is deterministic.
func Quotes(h model.PriceHistory) []Quote {
	var quotes []Quote
	for _, vendor := range model.SupportedVendors() {
		vp, ok := h[vendor.Slug]
		if !ok {
			continue
		}
		for _, finish := range model.Finishes() {
			q := Quote{Vendor: vendor.Slug, VendorName: vendor.Name, Finish: finish}
			if date, price, ok := vp.Retail[finish].LatestPoint(); ok {
				q.Retail = &PricePoint{Date: date, Price: price}
			}
			if date, price, ok := vp.Buylist[finish].LatestPoint(); ok {
				q.Buylist = &PricePoint{Date: date, Price: price}
			}
			if q.Retail != nil || q.Buylist != nil {
				quotes = append(quotes, q)
			}
		}
	}
	return quotes
}

// HistoryPoint is one dated observation for a (vendor, finish) leaf.
type HistoryPoint struct {
	Date    string   `json:"date"`
	Vendor  string   `json:"vendor"`
	Finish  string   `json:"finish"`
	Retail  *float64 `json:"retail,omitempty"`
	Buylist *float64 `json:"buylist,omitempty"`
}

// History flattens a price tree into a single array ordered by ascending
// date, with the supported vendor then finish order breaking ties. Retail and
// buylist observations on the same date share one entry.
func History(h model.PriceHistory) []HistoryPoint {
	var points []HistoryPoint
	for _, vendor := range model.SupportedVendors() {
		vp, ok := h[vendor.Slug]
		if !ok {
			continue
		}
		for _, finish := range model.Finishes() {
			retail := vp.Retail[finish]
			buylist := vp.Buylist[finish]
			if len(retail) == 0 && len(buylist) == 0 {
				continue
			}
			dates := make(model.DateMap, len(retail)+len(buylist))
			for date := range retail {
				dates[date] = 0
			}
			for date := range buylist {
				dates[date] = 0
			}
			for _, date := range dates.SortedDates() {
				p := HistoryPoint{Date: date, Vendor: vendor.Slug, Finish: finish}
				if price, ok := retail[date]; ok {
					p.Retail = &price
				}
				if price, ok := buylist[date]; ok {
					p.Buylist = &price
				}
				points = append(points, p)
			}
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date < points[j].Date
	})
	return points
}
