package underwriting

import (
	"fmt"
	"math"
	"strings"
)

// InputError reports a malformed PropertyData, AnalysisConfig or risk list.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *InputError {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ValidateProperty checks the fields the core requires. Physically odd but
// well-typed values (very high vacancy, zero rent) are left to the sanity checks.
func ValidateProperty(p PropertyData) error {
	numbers := []struct {
		field string
		v     float64
	}{
		{"price", p.Price},
		{"size_sqm", p.SizeSqm},
		{"hoa_levies_monthly", p.HOALeviesMonthly},
		{"property_taxes_annual", p.PropertyTaxesAnnual},
		{"inferred_market_data.avg_monthly_rental", p.InferredMarketData.AvgMonthlyRental},
		{"inferred_market_data.vacancy_rate", p.InferredMarketData.VacancyRate},
		{"inferred_market_data.annual_appreciation", p.InferredMarketData.AnnualAppreciation},
		{"inferred_market_data.effective_tax_rate", p.InferredMarketData.EffectiveTaxRate},
	}
	for _, n := range numbers {
		if !finite(n.v) {
			return invalid(n.field, "must be a finite number")
		}
	}
	if p.Price <= 0 {
		return invalid("price", "must be > 0, got %g", p.Price)
	}
	if strings.TrimSpace(p.Currency) == "" {
		return invalid("currency", "is required")
	}
	if p.InferredMarketData.VacancyRate < 0 || p.InferredMarketData.VacancyRate > 100 {
		return invalid("inferred_market_data.vacancy_rate", "must be within [0,100], got %g", p.InferredMarketData.VacancyRate)
	}
	if p.InferredMarketData.AnnualAppreciation <= -100 {
		return invalid("inferred_market_data.annual_appreciation", "must be > -100, got %g", p.InferredMarketData.AnnualAppreciation)
	}
	switch p.Confidence {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
	default:
		return invalid("confidence", "must be one of low|medium|high, got %q", p.Confidence)
	}
	if p.Condition != nil {
		if _, ok := ConditionScores[*p.Condition]; !ok {
			return invalid("condition", "must be one of new|good|average|poor, got %q", *p.Condition)
		}
	}
	if p.Bedrooms < 0 {
		return invalid("bedrooms", "must be >= 0, got %d", p.Bedrooms)
	}
	if p.Bathrooms < 0 {
		return invalid("bathrooms", "must be >= 0, got %d", p.Bathrooms)
	}
	if s := p.StructuralSubScores; s != nil {
		for _, c := range []struct {
			field string
			v     float64
		}{
			{"structural_sub_scores.roof_exterior", s.RoofExterior},
			{"structural_sub_scores.plumbing_water", s.PlumbingWater},
			{"structural_sub_scores.hvac_electrical", s.HVACElectrical},
		} {
			if !finite(c.v) || c.v < 0 || c.v > 100 {
				return invalid(c.field, "must be within [0,100], got %g", c.v)
			}
		}
	}
	return nil
}

func ValidateConfig(c AnalysisConfig) error {
	for _, n := range []struct {
		field string
		v     float64
	}{
		{"down_payment_pct", c.DownPaymentPct},
		{"interest_rate", c.InterestRate},
		{"maintenance_pct", c.MaintenancePct},
		{"insurance_pct", c.InsurancePct},
		{"management_pct", c.ManagementPct},
	} {
		if !finite(n.v) {
			return invalid(n.field, "must be a finite number")
		}
	}
	if c.DownPaymentPct < 0 || c.DownPaymentPct > 100 {
		return invalid("down_payment_pct", "must be within [0,100], got %g", c.DownPaymentPct)
	}
	if c.InterestRate < 0 {
		return invalid("interest_rate", "must be >= 0, got %g", c.InterestRate)
	}
	if c.LoanTermYears <= 0 {
		return invalid("loan_term_years", "must be > 0, got %d", c.LoanTermYears)
	}
	if _, ok := MaintenanceTierFor(c.MaintenancePct); !ok {
		return invalid("maintenance_pct", "must be one of 0.6|0.8|1.0|1.25, got %g", c.MaintenancePct)
	}
	if c.InsurancePct < 0 {
		return invalid("insurance_pct", "must be >= 0, got %g", c.InsurancePct)
	}
	if c.ManagementPct < 0 || c.ManagementPct > 100 {
		return invalid("management_pct", "must be within [0,100], got %g", c.ManagementPct)
	}
	return nil
}

// ValidateRisks requires a non-empty list with unique ids and scores in [0,100].
func ValidateRisks(risks []RiskFactor) error {
	if len(risks) == 0 {
		return invalid("risks", "at least one risk factor is required")
	}
	seen := make(map[string]struct{}, len(risks))
	for i, r := range risks {
		field := fmt.Sprintf("risks[%d]", i)
		if strings.TrimSpace(r.ID) == "" {
			return invalid(field+".id", "is required")
		}
		if _, dup := seen[r.ID]; dup {
			return invalid(field+".id", "duplicate id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if !finite(r.Score) || r.Score < 0 || r.Score > 100 {
			return invalid(field+".score", "must be within [0,100], got %g", r.Score)
		}
	}
	return nil
}

func validateFinancials(f Financials) error {
	if f.Loan.TermYears <= 0 {
		return invalid("financials.loan.term_years", "must be > 0, got %d", f.Loan.TermYears)
	}
	if !finite(f.AnnualNOI) || !finite(f.MonthlyCashFlow) || !finite(f.DSCR) {
		return invalid("financials", "contains non-finite values")
	}
	return nil
}
