package underwriting

import "testing"

func TestSensitivityRowsOrderedAndBaseMatchesCalculator(t *testing.T) {
	p := sampleThinDeal()
	cfg := DefaultConfig()
	rows, err := GenerateSensitivity(p, cfg)
	if err != nil {
		t.Fatalf("sensitivity: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Label != "Low" || rows[1].Label != "Base" || rows[2].Label != "High" {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if rows[0].Rate != 5.8 || rows[1].Rate != 6.8 || rows[2].Rate != 7.8 {
		t.Fatalf("unexpected rates: %+v", rows)
	}
	f, _ := CalculateFinancials(p, cfg)
	if rows[1].MonthlyCashFlow != f.MonthlyCashFlow || rows[1].NetYield != f.NetRentalYield {
		t.Fatalf("base row drifted: row=%+v cf=%v yield=%v", rows[1], f.MonthlyCashFlow, f.NetRentalYield)
	}
	if !(rows[0].MonthlyCashFlow > rows[1].MonthlyCashFlow && rows[1].MonthlyCashFlow > rows[2].MonthlyCashFlow) {
		t.Fatalf("cash flow should fall as rate rises: %+v", rows)
	}
}

func TestSensitivityLowRateFloorsAtZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterestRate = 0.5
	rows, err := GenerateSensitivity(sampleStrongDeal(), cfg)
	if err != nil {
		t.Fatalf("sensitivity: %v", err)
	}
	if rows[0].Rate != 0 {
		t.Fatalf("low rate should floor at 0, got %f", rows[0].Rate)
	}
}

func TestSensitivityRespectsSelfManaged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelfManaged = true
	rows, _ := GenerateSensitivity(sampleThinDeal(), cfg)
	f, _ := CalculateFinancials(sampleThinDeal(), cfg)
	if rows[1].MonthlyCashFlow != f.MonthlyCashFlow {
		t.Fatalf("self-managed base row drifted: %f vs %f", rows[1].MonthlyCashFlow, f.MonthlyCashFlow)
	}
}
