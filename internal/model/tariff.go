package model

// ConsultationTariffCode is the tariff key used to price a consultation.
const ConsultationTariffCode = "CONSULTATION"

// TariffTable maps a service or item code to its unit rate.
type TariffTable map[string]float64

// Lookup returns the rate for code and whether it exists.
func (t TariffTable) Lookup(code string) (float64, bool) {
	if code == "" {
		return 0, false
	}
	r, ok := t[code]
	return r, ok
}

// Rate returns the rate for code, or fallback when the code is unknown.
func (t TariffTable) Rate(code string, fallback float64) float64 {
	if r, ok := t.Lookup(code); ok {
		return r
	}
	return fallback
}

// Tariff is one row of the tariff master. Either code may be empty, and
// either price column may be unset.
type Tariff struct {
	ServiceCode string
	ItemCode    string
	Rate        *float64
	Price       *float64
}

// Key returns serviceCode, falling back to itemCode.
func (t Tariff) Key() string {
	if t.ServiceCode != "" {
		return t.ServiceCode
	}
	return t.ItemCode
}

// Amount returns rate, falling back to price, then 0.
func (t Tariff) Amount() float64 {
	switch {
	case t.Rate != nil:
		return *t.Rate
	case t.Price != nil:
		return *t.Price
	}
	return 0
}

// TariffColumns returns the ordered column names for COPY into his.tariffs.
func TariffColumns() []string {
	return []string{"service_code", "item_code", "rate", "price"}
}

// CopyValues returns the row values in the same order as TariffColumns().
func (t *Tariff) CopyValues() []any {
	return []any{nullable(t.ServiceCode), nullable(t.ItemCode), t.Rate, t.Price}
}

// BuildTariffTable folds tariff rows into a lookup table. Rows without a code
// are skipped; later rows win on duplicate codes.
func BuildTariffTable(rows []Tariff) TariffTable {
	table := make(TariffTable, len(rows))
	for _, r := range rows {
		if k := r.Key(); k != "" {
			table[k] = r.Amount()
		}
	}
	return table
}
