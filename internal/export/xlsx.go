// Package export writes spreadsheet reports of the latest stored prices.
package export

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/model"
	"github.com/deckhaven/cardsync/internal/store"
)

const exportPageSize = 500

var reportHeader = []string{
	"UUID", "Name", "Set", "Language", "Vendor", "Finish",
	"Retail Date", "Retail Price", "Buylist Date", "Buylist Price",
}

// WriteReport walks every card matching query ("" for all) and writes one
// spreadsheet row per (card, vendor, finish) leaf holding its latest prices.
// Returns the number of data rows written.
func WriteReport(ctx context.Context, st store.Store, path, query string) (int, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Latest Prices")
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range reportHeader {
		header.AddCell().SetString(col)
	}

	written := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return written, eris.Wrap(err, "export: cancelled")
		}

		cards, _, err := st.Search(ctx, query, page, exportPageSize)
		if err != nil {
			return written, err
		}
		if len(cards) == 0 {
			break
		}

		for _, card := range cards {
			written += appendCardRows(sheet, card)
		}
		if len(cards) < exportPageSize {
			break
		}
	}

	if err := file.Save(path); err != nil {
		return written, eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("report written",
		zap.String("path", path),
		zap.Int("rows", written))
	return written, nil
}

// appendCardRows emits one row per (vendor, finish) leaf present on the card.
func appendCardRows(sheet *xlsx.Sheet, card model.StoredCard) int {
	rows := 0
	for _, vendor := range model.SupportedVendors() {
		vp, ok := card.Prices[vendor.Slug]
		if !ok {
			continue
		}
		for _, finish := range model.Finishes() {
			retailDate, retailPrice, hasRetail := vp.Retail[finish].LatestPoint()
			buyDate, buyPrice, hasBuylist := vp.Buylist[finish].LatestPoint()
			if !hasRetail && !hasBuylist {
				continue
			}

			row := sheet.AddRow()
			row.AddCell().SetString(card.UUID)
			row.AddCell().SetString(card.Name)
			row.AddCell().SetString(card.SetCode)
			row.AddCell().SetString(card.Language)
			row.AddCell().SetString(vendor.Name)
			row.AddCell().SetString(finish)
			addPricePair(row, retailDate, retailPrice, hasRetail)
			addPricePair(row, buyDate, buyPrice, hasBuylist)
			rows++
		}
	}
	return rows
}

func addPricePair(row *xlsx.Row, date string, price float64, present bool) {
	if !present {
		row.AddCell()
		row.AddCell()
		return
	}
	row.AddCell().SetString(date)
	row.AddCell().SetFloat(price)
}
