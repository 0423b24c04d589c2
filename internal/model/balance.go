package model

// Balance is a holdings snapshot: base is the risk asset quantity,
// quote the reference (cash) asset quantity.
type Balance struct {
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// Add returns the balance shifted by an offset. Used to apply the
// process-wide virtual balance before allocation decisions.
func (b Balance) Add(offset Balance) Balance {
	return Balance{Base: b.Base + offset.Base, Quote: b.Quote + offset.Quote}
}

// AllocationPct returns the fraction of total portfolio value held in the
// base asset at the given price. Returns 0 for an empty portfolio.
func (b Balance) AllocationPct(price float64) float64 {
	total := b.Base*price + b.Quote
	if total == 0 {
		return 0
	}
	return b.Base * price / total
}
