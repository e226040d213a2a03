package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/taimuradam/sugar-app/internal/models"
)

// rateBook is the preloaded set of a bank's rate observations, grouped by
// tenor with each group sorted ascending by effective date.
type rateBook struct {
	byTenor map[int][]models.Rate
}

func newRateBook(rates []models.Rate) *rateBook {
	book := &rateBook{byTenor: make(map[int][]models.Rate)}
	for _, r := range rates {
		book.byTenor[r.TenorMonths] = append(book.byTenor[r.TenorMonths], r)
	}
	return book
}

// latestOn returns the latest rate for tenor effective on or before day,
// or placeholder if no observation exists yet.
func (b *rateBook) latestOn(tenor int, day civil.Date, placeholder decimal.Decimal) decimal.Decimal {
	var latest *models.Rate
	for i := range b.byTenor[tenor] {
		r := &b.byTenor[tenor][i]
		if r.EffectiveDate.After(day) {
			break
		}
		latest = r
	}
	if latest == nil {
		return placeholder
	}
	return latest.AnnualRate
}
