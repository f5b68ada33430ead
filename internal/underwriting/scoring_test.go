package underwriting

import (
	"errors"
	"strings"
	"testing"
)

func TestTierForBandEdges(t *testing.T) {
	cases := map[int]Tier{0: TierPoor, 40: TierPoor, 41: TierAverage, 60: TierAverage, 61: TierGood, 75: TierGood, 76: TierStrong, 100: TierStrong}
	for score, want := range cases {
		if got := TierFor(score); got != want {
			t.Fatalf("score %d: got=%s want=%s", score, got, want)
		}
	}
}

func TestScoreBandsAreContiguous(t *testing.T) {
	if ScoreBands[0].Min != 0 || ScoreBands[len(ScoreBands)-1].Max != 100 {
		t.Fatalf("bands must cover 0..100: %+v", ScoreBands)
	}
	for i := 1; i < len(ScoreBands); i++ {
		if ScoreBands[i].Min != ScoreBands[i-1].Max+1 {
			t.Fatalf("gap between %s and %s", ScoreBands[i-1].Tier, ScoreBands[i].Tier)
		}
	}
}

func TestScoreWeightsSumToOne(t *testing.T) {
	f := FinalScoreWeights
	if diff(f.AssetQuality+f.DealEconomics+f.LeverageImpact, 1) > 1e-12 {
		t.Fatal("final weights must sum to 1")
	}
	a := AssetQualityWeights
	if diff(a.Structural+a.Condition+a.Risk, 1) > 1e-12 {
		t.Fatal("asset weights must sum to 1")
	}
	d := DealEconomicsWeights
	if diff(d.CapRate+d.NetYield+d.CashOnCash, 1) > 1e-12 {
		t.Fatal("deal weights must sum to 1")
	}
}

func TestInstitutionalScoresThinDeal(t *testing.T) {
	p := sampleThinDeal()
	f, _ := CalculateFinancials(p, DefaultConfig())
	s, err := CalculateInstitutionalScores(p, f, sampleRisks(60, 70))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if s.AssetQualityScore != 65 || s.DealEconomicsScore != 49 || s.LeverageImpactScore != 33 || s.FinalScore != 50 {
		t.Fatalf("unexpected scores: %+v", s)
	}
	if s.Tier != TierAverage || s.Verdict != BandFor(50).Verdict {
		t.Fatalf("unexpected verdict: tier=%s verdict=%q", s.Tier, s.Verdict)
	}
	if len(s.MitigationSuggestions) != 2 {
		t.Fatalf("expected deal and leverage mitigations, got %v", s.MitigationSuggestions)
	}
	if !strings.Contains(s.MitigationSuggestions[1], "down payment") {
		t.Fatalf("expected leverage mitigation to mention down payment, got %q", s.MitigationSuggestions[1])
	}
	if !strings.Contains(s.ScoreExplanation, "weakest is leverage impact at 33") {
		t.Fatalf("explanation should name weakest driver: %q", s.ScoreExplanation)
	}
}

func TestInstitutionalScoresStrongDeal(t *testing.T) {
	p := sampleStrongDeal()
	f, _ := CalculateFinancials(p, DefaultConfig())
	s, err := CalculateInstitutionalScores(p, f, sampleRisks(70, 80, 75))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if s.AssetQualityScore != 76 || s.DealEconomicsScore != 92 || s.LeverageImpactScore != 79 || s.FinalScore != 83 {
		t.Fatalf("unexpected scores: %+v", s)
	}
	if s.Tier != TierStrong {
		t.Fatalf("expected strong tier, got %s", s.Tier)
	}
	if len(s.MitigationSuggestions) != 0 {
		t.Fatalf("expected no mitigations, got %v", s.MitigationSuggestions)
	}
	if !strings.Contains(s.ScoreExplanation, "Strongest driver is deal economics at 92") {
		t.Fatalf("explanation should name strongest driver: %q", s.ScoreExplanation)
	}
}

func TestLeverageCappedBelowAverageWhenDSCRUnderOne(t *testing.T) {
	p := sampleThinDeal()
	p.Condition = conditionPtr(ConditionNew)
	p.StructuralSubScores = &StructuralSubScores{RoofExterior: 100, PlumbingWater: 100, HVACElectrical: 100}
	cfg := DefaultConfig()
	cfg.SelfManaged = true
	f, _ := CalculateFinancials(p, cfg)
	if f.DSCR >= 1 {
		t.Fatalf("fixture drifted: dscr=%f", f.DSCR)
	}
	s, err := CalculateInstitutionalScores(p, f, sampleRisks(100, 100, 100))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if TierFor(s.LeverageImpactScore) != TierPoor {
		t.Fatalf("leverage must stay in the poor band, got %d", s.LeverageImpactScore)
	}

	// Force an otherwise perfect DSCR curve input just under 1.
	f.DSCR = 0.999
	f.MonthlyCashFlow = 5000
	if got := roundScore(leverageImpact(f)); got > 40 {
		t.Fatalf("leverage cap breached: %d", got)
	}
}

func TestLeverageImpactBands(t *testing.T) {
	cases := []struct {
		dscr     float64
		cashFlow float64
		want     Tier
	}{
		{0.5, -100, TierPoor},
		{1.0, 50, TierAverage},
		{1.2, 50, TierGood},
		{1.25, 50, TierStrong},
		{3.0, 50, TierStrong},
		{1.6, 0, TierAverage},
	}
	for _, tc := range cases {
		got := TierFor(roundScore(leverageImpact(Financials{DSCR: tc.dscr, MonthlyCashFlow: tc.cashFlow})))
		if got != tc.want {
			t.Fatalf("dscr %f cf %f: got=%s want=%s", tc.dscr, tc.cashFlow, got, tc.want)
		}
	}
}

func TestAssetQualityMissingStructuralRenormalizes(t *testing.T) {
	p := sampleStrongDeal()
	p.StructuralSubScores = nil
	// condition good (80) at 0.2, risk 60 at 0.4 -> (16+24)/0.6
	got := assetQuality(p, sampleRisks(60))
	if diff(got, 66.6666666667) > 1e-6 {
		t.Fatalf("unexpected asset quality: got=%f", got)
	}
}

func TestMitigationEmptyIffAllSubScoresGood(t *testing.T) {
	subs := []subScore{{dimensionAsset, 61}, {dimensionDeal, 75}, {dimensionLeverage, 100}}
	if got := mitigations(sampleStrongDeal(), Financials{}, subs); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
	subs[0].score = 60
	if got := mitigations(sampleStrongDeal(), Financials{}, subs); len(got) != 1 {
		t.Fatalf("expected one, got %v", got)
	}
}

func TestHighVacancyMitigationMentionsComps(t *testing.T) {
	got := mitigationFor(dimensionDeal, sampleStrongDeal(), Financials{EffectiveVacancyPct: 15})
	if !strings.Contains(got, "rental comps") {
		t.Fatalf("unexpected mitigation: %q", got)
	}
}

func TestCalculateInstitutionalScoresRejectsBadRisks(t *testing.T) {
	p := sampleStrongDeal()
	f, _ := CalculateFinancials(p, DefaultConfig())
	cases := map[string][]RiskFactor{
		"risks":          nil,
		"risks[0].score": {{ID: "market", Score: 120}},
		"risks[1].id":    {{ID: "market", Score: 50}, {ID: "market", Score: 40}},
	}
	for field, risks := range cases {
		_, err := CalculateInstitutionalScores(p, f, risks)
		var inErr *InputError
		if !errors.As(err, &inErr) || inErr.Field != field {
			t.Fatalf("expected InputError on %s, got %v", field, err)
		}
	}
}
