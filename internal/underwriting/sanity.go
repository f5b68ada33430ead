package underwriting

import (
	"fmt"
	"strings"
)

type sanityRule struct {
	id       string
	severity Severity
	check    func(p PropertyData, f Financials) bool
	message  func(p PropertyData, f Financials) string
}

func fixed(msg string) func(PropertyData, Financials) string {
	return func(PropertyData, Financials) string { return msg }
}

// sanityRules is evaluated in order; the order is the output order.
var sanityRules = []sanityRule{
	{
		id:       "dscr_below_one",
		severity: SeverityCritical,
		check:    func(_ PropertyData, f Financials) bool { return f.DSCR < dscrMinimum },
		message: func(_ PropertyData, f Financials) string {
			return fmt.Sprintf("DSCR of %.2f is below 1.00: net operating income does not cover debt service and a lender would decline.", f.DSCR)
		},
	},
	{
		id:       "deep_negative_cash_flow",
		severity: SeverityCritical,
		check: func(p PropertyData, f Financials) bool {
			return f.MonthlyCashFlow < -DeepNegativeRentMultiple*p.InferredMarketData.AvgMonthlyRental
		},
		message: func(p PropertyData, f Financials) string {
			return fmt.Sprintf("Monthly cash flow of %.0f %s is worse than %.0f%% of monthly rent.",
				f.MonthlyCashFlow, p.Currency, DeepNegativeRentMultiple*100)
		},
	},
	{
		id:       "estimated_inputs",
		severity: SeverityWarning,
		check: func(p PropertyData, _ Financials) bool {
			e := p.IsEstimated
			return e.Price || e.Taxes || e.Rental
		},
		message: func(p PropertyData, _ Financials) string {
			return fmt.Sprintf("Estimated inputs in use (%s); verify before relying on the result.", estimatedFields(p.IsEstimated, true))
		},
	},
	{
		id:       "vacancy_floor_applied",
		severity: SeverityWarning,
		check: func(p PropertyData, _ Financials) bool {
			return p.InferredMarketData.VacancyRate < InstitutionalFloors.VacancyMinPct
		},
		message: func(p PropertyData, f Financials) string {
			return fmt.Sprintf("Reported vacancy of %.1f%% is below the institutional floor; %.1f%% was used.",
				p.InferredMarketData.VacancyRate, f.EffectiveVacancyPct)
		},
	},
	{
		id:       "high_vacancy",
		severity: SeverityWarning,
		check:    func(_ PropertyData, f Financials) bool { return f.EffectiveVacancyPct > HighVacancyPct },
		message: func(_ PropertyData, f Financials) string {
			return fmt.Sprintf("Vacancy of %.1f%% is above %.0f%%; verify rental demand with a local agent.", f.EffectiveVacancyPct, HighVacancyPct)
		},
	},
	{
		id:       "deferred_maintenance_poor_condition",
		severity: SeverityWarning,
		check: func(p PropertyData, f Financials) bool {
			return isCondition(p, ConditionPoor) && f.Expenses.MaintenancePct == MaintenanceTiers[MaintenanceDeferred]
		},
		message: fixed("Poor condition with deferred maintenance: budget for capital expenditure beyond the annual provision."),
	},
	{
		id:       "maintenance_underprovisioned",
		severity: SeverityWarning,
		check: func(p PropertyData, f Financials) bool {
			return isCondition(p, ConditionPoor) && f.Expenses.MaintenancePct < MaintenanceTiers[MaintenanceDeferred]
		},
		message: func(_ PropertyData, f Financials) string {
			return fmt.Sprintf("Property is in poor condition but maintenance is provisioned at %.2f%% of price; the deferred tier is %.2f%%.",
				f.Expenses.MaintenancePct, MaintenanceTiers[MaintenanceDeferred])
		},
	},
	{
		id:       "secondary_estimates",
		severity: SeverityInfo,
		check: func(p PropertyData, _ Financials) bool {
			return p.IsEstimated.Levies || p.IsEstimated.Size
		},
		message: func(p PropertyData, _ Financials) string {
			return fmt.Sprintf("Secondary figures are estimated (%s).", estimatedFields(p.IsEstimated, false))
		},
	},
	{
		id:       "low_confidence",
		severity: SeverityInfo,
		check:    func(p PropertyData, _ Financials) bool { return p.Confidence == ConfidenceLow },
		message:  fixed("Extraction confidence is low; treat every figure as indicative."),
	},
	{
		id:       "no_grounding_sources",
		severity: SeverityInfo,
		check:    func(p PropertyData, _ Financials) bool { return len(p.GroundingSources) == 0 },
		message:  fixed("No evidentiary sources were supplied for the market data."),
	},
}

// RunSanityChecks returns the triggered checks in rule order.
func RunSanityChecks(property PropertyData, financials Financials) []SanityCheck {
	out := make([]SanityCheck, 0, len(sanityRules))
	for _, r := range sanityRules {
		if !r.check(property, financials) {
			continue
		}
		out = append(out, SanityCheck{
			ID:        r.id,
			Type:      r.severity,
			Message:   r.message(property, financials),
			Triggered: true,
		})
	}
	return out
}

// SanityRuleIDs lists every rule id in evaluation order.
func SanityRuleIDs() []string {
	ids := make([]string, len(sanityRules))
	for i, r := range sanityRules {
		ids[i] = r.id
	}
	return ids
}

func isCondition(p PropertyData, c Condition) bool {
	return p.Condition != nil && *p.Condition == c
}

func estimatedFields(e EstimationFlags, primary bool) string {
	var names []string
	if primary {
		if e.Price {
			names = append(names, "price")
		}
		if e.Taxes {
			names = append(names, "taxes")
		}
		if e.Rental {
			names = append(names, "rental")
		}
	} else {
		if e.Levies {
			names = append(names, "levies")
		}
		if e.Size {
			names = append(names, "size")
		}
	}
	return strings.Join(names, ", ")
}
