package model

// LedgerEntry is one recorded forecast. Timestamps are epoch milliseconds.
// The optional fields stay nil while their horizon is pending; once set they
// are never revisited.
type LedgerEntry struct {
	ID              string  `json:"id,omitempty"`
	CreatedAt       int64   `json:"createdAt"`
	AssetID         string  `json:"assetId"`
	PriceAtCreation float64 `json:"priceAtCreation"`

	ShortHorizonForecast   float64  `json:"shortHorizonForecast"`
	ShortHorizonActual     *float64 `json:"shortHorizonActual"`
	ShortHorizonResolvedAt *int64   `json:"shortHorizonResolvedAt"`

	LongHorizonForecast   float64  `json:"longHorizonForecast"`
	LongHorizonActual     *float64 `json:"longHorizonActual"`
	LongHorizonResolvedAt *int64   `json:"longHorizonResolvedAt"`
}

// ShortResolved reports whether the short horizon has been resolved.
func (e *LedgerEntry) ShortResolved() bool { return e.ShortHorizonActual != nil }

// LongResolved reports whether the long horizon has been resolved.
func (e *LedgerEntry) LongResolved() bool { return e.LongHorizonActual != nil }

// Clone returns a deep copy so callers never share the optional pointers.
func (e LedgerEntry) Clone() LedgerEntry {
	out := e
	if e.ShortHorizonActual != nil {
		v := *e.ShortHorizonActual
		out.ShortHorizonActual = &v
	}
	if e.ShortHorizonResolvedAt != nil {
		v := *e.ShortHorizonResolvedAt
		out.ShortHorizonResolvedAt = &v
	}
	if e.LongHorizonActual != nil {
		v := *e.LongHorizonActual
		out.LongHorizonActual = &v
	}
	if e.LongHorizonResolvedAt != nil {
		v := *e.LongHorizonResolvedAt
		out.LongHorizonResolvedAt = &v
	}
	return out
}

// HorizonStats aggregates the resolved entries of one horizon.
// HitRate and MeanPctError are nil when Resolved is zero.
type HorizonStats struct {
	Count        int      `json:"count"`
	Resolved     int      `json:"resolved"`
	Pending      int      `json:"pending"`
	HitRate      *float64 `json:"hitRate"`      // percent, 0..100
	MeanPctError *float64 `json:"meanPctError"` // percent of priceAtCreation
}

// LedgerStats is derived on demand from the entry set, optionally filtered
// by asset (AssetID empty means all assets).
type LedgerStats struct {
	AssetID string       `json:"assetId,omitempty"`
	Short   HorizonStats `json:"short"`
	Long    HorizonStats `json:"long"`
}
