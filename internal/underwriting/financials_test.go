package underwriting

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestMonthlyPaymentMatchesAmortizationFormula(t *testing.T) {
	got := MonthlyPayment(240000, 6.8, 30)
	want := 1564.6204515957832
	if diff(got, want) > 0.005 {
		t.Fatalf("unexpected payment: got=%f want=%f", got, want)
	}
}

func TestMonthlyPaymentZeroRateIsStraightLine(t *testing.T) {
	got := MonthlyPayment(360000, 0, 30)
	if got != 1000 {
		t.Fatalf("unexpected zero-rate payment: got=%f want=1000", got)
	}
}

func TestCalculateFinancialsThinDeal(t *testing.T) {
	f, err := CalculateFinancials(sampleThinDeal(), DefaultConfig())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	checks := []struct {
		name      string
		got, want float64
	}{
		{"effective_vacancy", f.EffectiveVacancyPct, 4},
		{"egi", f.EffectiveGrossIncomeAnnual, 27648},
		{"total_expenses", f.TotalAnnualExpenses, 12111.84},
		{"noi", f.AnnualNOI, 15536.16},
		{"payment", f.MortgagePaymentMonthly, 1564.6204515957832},
		{"cash_flow", f.MonthlyCashFlow, -269.9404515957831},
		{"dscr", f.DSCR, 0.827472246498845},
		{"cap_rate", f.CapRate, 5.17872},
		{"cash_on_cash", f.CashOnCash, -4.499007526596385},
		{"gross_yield", f.GrossRentalYield, 9.6},
		{"break_even", f.BreakEvenYears, BreakEvenNever},
		{"management", f.Expenses.Management, 2211.84},
		{"closing_costs", f.Loan.ClosingCosts, 12000},
	}
	for _, c := range checks {
		if diff(c.got, c.want) > 1e-6 {
			t.Fatalf("%s: got=%f want=%f", c.name, c.got, c.want)
		}
	}
}

func TestCalculateFinancialsStrongDealBreakEven(t *testing.T) {
	f, err := CalculateFinancials(sampleStrongDeal(), DefaultConfig())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if diff(f.AnnualNOI, 21118.8) > 1e-6 {
		t.Fatalf("unexpected noi: got=%f", f.AnnualNOI)
	}
	if diff(f.DSCR, 1.3497714399975131) > 1e-9 {
		t.Fatalf("unexpected dscr: got=%f", f.DSCR)
	}
	wantBreakEven := 60000 / (456.0496236701804 * 12)
	if diff(f.BreakEvenYears, wantBreakEven) > 1e-6 {
		t.Fatalf("unexpected break-even: got=%f want=%f", f.BreakEvenYears, wantBreakEven)
	}
}

func TestDSCRIsNOIOverAnnualDebtService(t *testing.T) {
	for _, p := range []PropertyData{sampleThinDeal(), sampleStrongDeal()} {
		for _, rate := range []float64{0.5, 3, 6.8, 11} {
			cfg := DefaultConfig()
			cfg.InterestRate = rate
			f, err := CalculateFinancials(p, cfg)
			if err != nil {
				t.Fatalf("calculate: %v", err)
			}
			want := f.AnnualNOI / (f.MortgagePaymentMonthly * 12)
			if diff(f.DSCR, want) > 1e-12 {
				t.Fatalf("dscr mismatch at rate %f: got=%f want=%f", rate, f.DSCR, want)
			}
		}
	}
}

func TestVacancyFloorApplied(t *testing.T) {
	p := sampleThinDeal()
	for _, v := range []float64{0, 2, 3.99} {
		p.InferredMarketData.VacancyRate = v
		f, err := CalculateFinancials(p, DefaultConfig())
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if f.EffectiveVacancyPct != 4 {
			t.Fatalf("vacancy %f: effective=%f want=4", v, f.EffectiveVacancyPct)
		}
		if diff(f.EffectiveGrossIncomeAnnual, 28800*0.96) > 1e-9 {
			t.Fatalf("vacancy %f: egi=%f", v, f.EffectiveGrossIncomeAnnual)
		}
	}
	p.InferredMarketData.VacancyRate = 7
	f, _ := CalculateFinancials(p, DefaultConfig())
	if f.EffectiveVacancyPct != 7 {
		t.Fatalf("expected supplied vacancy above floor to be kept, got=%f", f.EffectiveVacancyPct)
	}
}

func TestSelfManagedZeroesManagementFee(t *testing.T) {
	p := sampleThinDeal()
	for _, rent := range []float64{0, 1200, 2400, 9000} {
		p.InferredMarketData.AvgMonthlyRental = rent
		managed, err := CalculateFinancials(p, DefaultConfig())
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		cfg := DefaultConfig()
		cfg.SelfManaged = true
		self, err := CalculateFinancials(p, cfg)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if self.Expenses.Management != 0 || self.Expenses.ManagementPct != 0 {
			t.Fatalf("rent %f: expected no management line, got=%+v", rent, self.Expenses)
		}
		if diff(self.AnnualNOI-managed.AnnualNOI, managed.Expenses.Management) > 1e-9 {
			t.Fatalf("rent %f: NOI delta should equal management fee", rent)
		}
	}
}

func TestCalculateFinancialsIsDeterministic(t *testing.T) {
	a, _ := CalculateFinancials(sampleThinDeal(), DefaultConfig())
	b, _ := CalculateFinancials(sampleThinDeal(), DefaultConfig())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical output, got %+v vs %+v", a, b)
	}
}

func TestHigherRateLowersCashFlow(t *testing.T) {
	prev, _ := CalculateFinancials(sampleStrongDeal(), DefaultConfig())
	for _, rate := range []float64{7, 7.5, 9, 12} {
		cfg := DefaultConfig()
		cfg.InterestRate = rate
		f, _ := CalculateFinancials(sampleStrongDeal(), cfg)
		if f.MonthlyCashFlow >= prev.MonthlyCashFlow {
			t.Fatalf("rate %f: cash flow did not fall: got=%f prev=%f", rate, f.MonthlyCashFlow, prev.MonthlyCashFlow)
		}
		if f.DSCR > prev.DSCR {
			t.Fatalf("rate %f: dscr rose: got=%f prev=%f", rate, f.DSCR, prev.DSCR)
		}
		prev = f
	}
}

func TestAllCashPurchaseReportsUnboundedDSCR(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DownPaymentPct = 100
	f, err := CalculateFinancials(sampleStrongDeal(), cfg)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if f.MortgagePaymentMonthly != 0 || f.DSCR != DSCRUnbounded {
		t.Fatalf("expected no debt and unbounded dscr, got payment=%f dscr=%f", f.MortgagePaymentMonthly, f.DSCR)
	}
	if math.IsInf(f.BreakEvenYears, 0) || math.IsNaN(f.BreakEvenYears) {
		t.Fatalf("break-even must be finite, got %f", f.BreakEvenYears)
	}
}

func TestCalculateFinancialsRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name  string
		field string
		p     func(*PropertyData)
		c     func(*AnalysisConfig)
	}{
		{"zero price", "price", func(p *PropertyData) { p.Price = 0 }, nil},
		{"negative price", "price", func(p *PropertyData) { p.Price = -1 }, nil},
		{"nan rent", "inferred_market_data.avg_monthly_rental", func(p *PropertyData) { p.InferredMarketData.AvgMonthlyRental = math.NaN() }, nil},
		{"missing currency", "currency", func(p *PropertyData) { p.Currency = "" }, nil},
		{"bad confidence", "confidence", func(p *PropertyData) { p.Confidence = "certain" }, nil},
		{"negative term", "loan_term_years", nil, func(c *AnalysisConfig) { c.LoanTermYears = -5 }},
		{"down payment over 100", "down_payment_pct", nil, func(c *AnalysisConfig) { c.DownPaymentPct = 120 }},
		{"off-tier maintenance", "maintenance_pct", nil, func(c *AnalysisConfig) { c.MaintenancePct = 0.9 }},
		{"negative rate", "interest_rate", nil, func(c *AnalysisConfig) { c.InterestRate = -1 }},
	}
	for _, tc := range cases {
		p := sampleThinDeal()
		c := DefaultConfig()
		if tc.p != nil {
			tc.p(&p)
		}
		if tc.c != nil {
			tc.c(&c)
		}
		_, err := CalculateFinancials(p, c)
		var inErr *InputError
		if !errors.As(err, &inErr) {
			t.Fatalf("%s: expected InputError, got %v", tc.name, err)
		}
		if inErr.Field != tc.field {
			t.Fatalf("%s: field=%q want=%q", tc.name, inErr.Field, tc.field)
		}
	}
}
