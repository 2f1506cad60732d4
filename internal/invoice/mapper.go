package invoice

import (
	"math"

	"github.com/nexopos/sucursalsync/internal/products"
)

// Pricing defaults, overridable through configuration.
const (
	DefaultProfitMargin = 50.0
	DefaultIVARate      = 15.0
)

// Mapper turns parsed invoice lines into catalog products with retail
// pricing applied.
type Mapper struct {
	Margin  float64
	IVARate float64
}

// NewMapper constructs a Mapper. Non-positive parameters fall back to the
// defaults.
func NewMapper(margin, ivaRate float64) *Mapper {
	if margin <= 0 {
		margin = DefaultProfitMargin
	}
	if ivaRate <= 0 {
		ivaRate = DefaultIVARate
	}
	return &Mapper{Margin: margin, IVARate: ivaRate}
}

// Map prices one line for retail. The margin goes on top of the unit cost,
// the result lands on a 5 cent shelf price, and the stored list price backs
// the tax out so POS receipts reproduce the shelf price exactly.
func (m *Mapper) Map(line Line) products.MappedProduct {
	sale := RoundSalePrice(line.UnitCost * (1 + m.Margin/100))
	list := sale / (1 + m.IVARate/100)
	list = math.Round(list*1e8) / 1e8

	return products.MappedProduct{
		Name:           line.Description,
		Barcode:        line.Barcode,
		StandardPrice:  line.UnitCost,
		ListPrice:      list,
		DisplayPrice:   sale,
		QtyAvailable:   line.Quantity,
		QuantityMode:   products.QuantityModeAdd,
		Tracking:       "none",
		AvailableInPOS: true,
	}
}

// MapAll maps every line in order.
func (m *Mapper) MapAll(lines []Line) []products.MappedProduct {
	out := make([]products.MappedProduct, 0, len(lines))
	for _, line := range lines {
		out = append(out, m.Map(line))
	}
	return out
}

// RoundSalePrice lands a price on the nearest psychologically easy shelf
// value. Whole dollar amounts move up to the next 5 or 10; fractional
// amounts move up to the next 5 cent step.
func RoundSalePrice(price float64) float64 {
	nearest := math.Round(price)
	if math.Abs(price-nearest) < 0.01 {
		n := int64(nearest)
		switch last := n % 10; {
		case last >= 1 && last <= 4:
			return float64(n + (5 - last))
		case last >= 6 && last <= 9:
			return float64(n + (10 - last))
		default:
			return float64(n)
		}
	}

	whole := math.Floor(price)
	decimals := price - whole
	cents := int(math.Round(decimals*100)) % 10
	tenth := math.Floor(decimals*10) / 10
	var frac float64
	if cents <= 5 {
		frac = tenth + 0.05
	} else {
		frac = (math.Floor(decimals*10) + 1) / 10
	}
	return math.Round((whole+frac)*100) / 100
}
