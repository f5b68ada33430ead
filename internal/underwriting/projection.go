package underwriting

import "math"

// GenerateProjections forecasts value and equity for years 0..ProjectionYears.
// Year 0 is the purchase: value is the price and equity is the down payment.
func GenerateProjections(property PropertyData, financials Financials) []Projection {
	loan := financials.Loan
	growth := 1 + property.InferredMarketData.AnnualAppreciation/100
	out := make([]Projection, 0, ProjectionYears+1)
	for year := 0; year <= ProjectionYears; year++ {
		value := property.Price * math.Pow(growth, float64(year))
		balance := RemainingBalance(loan.Principal, loan.AnnualRatePct, loan.TermYears, year*12)
		out = append(out, Projection{
			Year:   year,
			Value:  value,
			Equity: value - balance,
		})
	}
	return out
}
