package underwriting

import "math"

// CalculateFinancials derives the pro-forma for property under config.
func CalculateFinancials(property PropertyData, config AnalysisConfig) (Financials, error) {
	if err := ValidateProperty(property); err != nil {
		return Financials{}, err
	}
	if err := ValidateConfig(config); err != nil {
		return Financials{}, err
	}
	return computeFinancials(property, config, config.InterestRate), nil
}

// computeFinancials is shared by the calculator and the sensitivity rows so
// that a row at the configured rate is bit-identical to CalculateFinancials.
func computeFinancials(p PropertyData, c AnalysisConfig, ratePct float64) Financials {
	price := p.Price
	vacancy := EffectiveVacancy(p.InferredMarketData.VacancyRate)
	grossAnnual := p.InferredMarketData.AvgMonthlyRental * 12
	egi := grossAnnual * (1 - vacancy/100)

	expenses := ExpenseBreakdown{
		PropertyTaxes:  p.PropertyTaxesAnnual,
		HOALevies:      p.HOALeviesMonthly * 12,
		Maintenance:    price * c.MaintenancePct / 100,
		Insurance:      price * c.InsurancePct / 100,
		Management:     managementFee(egi, c),
		MaintenancePct: c.MaintenancePct,
		ManagementPct:  c.ManagementPct,
		SelfManaged:    c.SelfManaged,
	}
	if c.SelfManaged {
		expenses.ManagementPct = 0
	}
	totalExpenses := expenses.Total()
	noi := egi - totalExpenses

	loan := LoanTerms{
		DownPayment:   price * c.DownPaymentPct / 100,
		ClosingCosts:  price * InstitutionalFloors.ClosingCostsPct / 100,
		Principal:     price * (1 - c.DownPaymentPct/100),
		AnnualRatePct: ratePct,
		TermYears:     c.LoanTermYears,
	}
	payment := MonthlyPayment(loan.Principal, ratePct, c.LoanTermYears)
	annualDebt := payment * 12
	cashFlow := noi/12 - payment
	annualCashFlow := cashFlow * 12
	invested := loan.CashInvested()

	dscr := DSCRUnbounded
	if annualDebt > 0 {
		dscr = noi / annualDebt
	}
	breakEven := BreakEvenNever
	if annualCashFlow > 0 {
		breakEven = invested / annualCashFlow
	}
	coc := 0.0
	if invested > 0 {
		coc = annualCashFlow / invested * 100
	}

	return Financials{
		GrossRentalYield:           grossAnnual / price * 100,
		NetRentalYield:             noi / price * 100,
		MonthlyCashFlow:            cashFlow,
		AnnualNOI:                  noi,
		CapRate:                    noi / price * 100,
		CashOnCash:                 coc,
		BreakEvenYears:             breakEven,
		MortgagePaymentMonthly:     payment,
		TotalAnnualExpenses:        totalExpenses,
		DSCR:                       dscr,
		EffectiveVacancyPct:        vacancy,
		GrossRentalIncomeAnnual:    grossAnnual,
		EffectiveGrossIncomeAnnual: egi,
		Expenses:                   expenses,
		Loan:                       loan,
	}
}

// EffectiveVacancy applies the institutional vacancy floor.
func EffectiveVacancy(vacancyPct float64) float64 {
	return math.Max(vacancyPct, InstitutionalFloors.VacancyMinPct)
}

// managementFee is the only place the management line is derived.
func managementFee(effectiveGrossAnnual float64, c AnalysisConfig) float64 {
	if c.SelfManaged {
		return 0
	}
	return effectiveGrossAnnual * c.ManagementPct / 100
}

// MonthlyPayment is the fixed-rate amortizing payment. A zero rate degrades to
// straight-line principal repayment.
func MonthlyPayment(principal, annualRatePct float64, termYears int) float64 {
	n := float64(termYears * 12)
	if principal <= 0 || n <= 0 {
		return 0
	}
	r := annualRatePct / 100 / 12
	if r == 0 {
		return principal / n
	}
	return principal * r / (1 - math.Pow(1+r, -n))
}

// RemainingBalance is the loan balance after k monthly payments.
func RemainingBalance(principal, annualRatePct float64, termYears, k int) float64 {
	if principal <= 0 {
		return 0
	}
	n := termYears * 12
	if k >= n {
		return 0
	}
	payment := MonthlyPayment(principal, annualRatePct, termYears)
	r := annualRatePct / 100 / 12
	var balance float64
	if r == 0 {
		balance = principal - payment*float64(k)
	} else {
		growth := math.Pow(1+r, float64(k))
		balance = principal*growth - payment*(growth-1)/r
	}
	return math.Max(balance, 0)
}
