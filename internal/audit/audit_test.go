package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/propquant/internal/extraction"
	"github.com/joelkehle/propquant/internal/underwriting"
)

var fixedTime = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func fixedIssuer() Issuer {
	return Issuer{NewID: func() string { return "an-1" }, Now: func() time.Time { return fixedTime }}
}

func sampleProperty() underwriting.PropertyData {
	cond := underwriting.ConditionGood
	return underwriting.PropertyData{
		URL:                 "https://listings.example.com/1",
		Price:               250000,
		Location:            underwriting.Location{City: "Cleveland", Suburb: "Ohio City", Country: "US"},
		Type:                "duplex",
		Condition:           &cond,
		SizeSqm:             180,
		Bedrooms:            4,
		Bathrooms:           2,
		PropertyTaxesAnnual: 2400,
		Currency:            "USD",
		Confidence:          underwriting.ConfidenceHigh,
		InferredMarketData:  underwriting.MarketData{AvgMonthlyRental: 2600, VacancyRate: 5, AnnualAppreciation: 3},
		StructuralSubScores: &underwriting.StructuralSubScores{RoofExterior: 70, PlumbingWater: 75, HVACElectrical: 80, Guidance: "Roof | gutters due"},
		GroundingSources:    []underwriting.GroundingSource{{Title: "Listing", URI: "https://listings.example.com/1"}},
	}
}

func sampleRisks() []underwriting.RiskFactor {
	return []underwriting.RiskFactor{
		{ID: "market", Label: "Market", Score: 70, Description: "Stable demand"},
		{ID: "structural", Label: "Structural", Score: 80, Description: "Sound | dry"},
		{ID: "liquidity", Label: "Liquidity", Score: 35, Description: "Thin resale market"},
	}
}

type fakeFetcher struct {
	err error
}

func (f fakeFetcher) Fetch(_ context.Context, url string) (extraction.ListingPage, error) {
	if f.err != nil {
		return extraction.ListingPage{}, f.err
	}
	return extraction.ListingPage{URL: url, Title: "Duplex", Text: "Asking 250k"}, nil
}

type fakeExtractor struct {
	riskErr error
}

func (fakeExtractor) ExtractProperty(_ context.Context, page extraction.ListingPage) (underwriting.PropertyData, extraction.StageAttemptMetrics, error) {
	p := sampleProperty()
	p.URL = page.URL
	return p, extraction.StageAttemptMetrics{Attempts: 2, ContentRetries: 1, Repairs: 1}, nil
}

func (f fakeExtractor) AssessRisks(context.Context, underwriting.PropertyData) ([]underwriting.RiskFactor, extraction.StageAttemptMetrics, error) {
	if f.riskErr != nil {
		return nil, extraction.StageAttemptMetrics{Attempts: 3}, f.riskErr
	}
	return sampleRisks(), extraction.StageAttemptMetrics{Attempts: 1}, nil
}

func TestPipelineRunsAllStages(t *testing.T) {
	var progress []string
	p := NewPipeline(fakeFetcher{}, fakeExtractor{}).WithIssuer(fixedIssuer())
	res, err := p.Run(context.Background(), Request{URL: "https://listings.example.com/1", Config: underwriting.DefaultConfig(), Profile: "default"}, func(stage, _ string) {
		progress = append(progress, stage)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "fetch,extract,assess_risk,underwrite"
	if got := strings.Join(res.Metadata.StagesExecuted, ","); got != want {
		t.Fatalf("unexpected stages: got=%s want=%s", got, want)
	}
	if got := strings.Join(progress, ","); got != want {
		t.Fatalf("unexpected progress: %s", got)
	}
	if res.Analysis.ID != "an-1" || !res.Analysis.Timestamp.Equal(fixedTime) {
		t.Fatalf("unexpected identity: %s %v", res.Analysis.ID, res.Analysis.Timestamp)
	}
	if res.Metadata.TotalLLMCalls != 3 || res.Metadata.TotalRetries != 1 || res.Metadata.TotalRepairs != 1 {
		t.Fatalf("unexpected metadata: %+v", res.Metadata)
	}
	if res.Page.Title != "Duplex" {
		t.Fatalf("page not recorded: %+v", res.Page)
	}
}

func TestPipelineStageFailure(t *testing.T) {
	p := NewPipeline(fakeFetcher{}, fakeExtractor{riskErr: errors.New("model unavailable")}).WithIssuer(fixedIssuer())
	res, err := p.Run(context.Background(), Request{URL: "https://x.example.com", Config: underwriting.DefaultConfig()}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if StageNameFromError(err) != StageAssessRisk || res.Metadata.StageFailed != StageAssessRisk {
		t.Fatalf("unexpected failed stage: %s / %s", StageNameFromError(err), res.Metadata.StageFailed)
	}
	if res.Metadata.StageAttempts[StageAssessRisk] != 3 {
		t.Fatalf("expected failing stage attempts to be recorded: %+v", res.Metadata.StageAttempts)
	}
}

func TestPipelineRejectsBadRequest(t *testing.T) {
	p := NewPipeline(fakeFetcher{}, fakeExtractor{})
	if _, err := p.Run(context.Background(), Request{Config: underwriting.DefaultConfig()}, nil); StageNameFromError(err) != StageFetch {
		t.Fatalf("expected fetch stage error, got %v", err)
	}
	cfg := underwriting.DefaultConfig()
	cfg.LoanTermYears = 0
	_, err := p.Run(context.Background(), Request{URL: "https://x.example.com", Config: cfg}, nil)
	var inErr *underwriting.InputError
	if !errors.As(err, &inErr) || inErr.Field != "loan_term_years" {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestUnderwriteDeterministicPath(t *testing.T) {
	a, err := fixedIssuer().Underwrite(sampleProperty(), sampleRisks(), underwriting.DefaultConfig())
	if err != nil {
		t.Fatalf("underwrite: %v", err)
	}
	b, _ := fixedIssuer().Underwrite(sampleProperty(), sampleRisks(), underwriting.DefaultConfig())
	if BuildMarkdown(a) != BuildMarkdown(b) {
		t.Fatal("report should be deterministic for identical inputs")
	}
	if len(a.Sensitivity) != 3 || len(a.Projections) != underwriting.ProjectionYears+1 {
		t.Fatalf("missing artifacts: %+v", a)
	}
}

func TestUnderwriteDefaultIssuerAssignsUUID(t *testing.T) {
	a, err := Underwrite(sampleProperty(), sampleRisks(), underwriting.DefaultConfig())
	if err != nil {
		t.Fatalf("underwrite: %v", err)
	}
	if len(a.ID) != 36 || a.Timestamp.IsZero() {
		t.Fatalf("unexpected identity: %q %v", a.ID, a.Timestamp)
	}
}

func TestRerunKeepsInputsAndAppliesNewConfig(t *testing.T) {
	prev, err := fixedIssuer().Underwrite(sampleProperty(), sampleRisks(), underwriting.DefaultConfig())
	if err != nil {
		t.Fatalf("underwrite: %v", err)
	}
	cfg := underwriting.DefaultConfig()
	cfg.InterestRate = 4.5
	later := Issuer{NewID: func() string { return "an-2" }, Now: func() time.Time { return fixedTime.Add(time.Hour) }}
	next, err := later.Rerun(prev, cfg)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if next.ID != "an-2" || !next.Timestamp.Equal(fixedTime.Add(time.Hour)) {
		t.Fatalf("rerun id=%s ts=%s", next.ID, next.Timestamp)
	}
	if next.Config.InterestRate != 4.5 || next.Property.Price != prev.Property.Price {
		t.Fatalf("rerun config=%+v", next.Config)
	}
	if next.Financials.MortgagePaymentMonthly >= prev.Financials.MortgagePaymentMonthly {
		t.Fatalf("lower rate should lower the payment: %v >= %v", next.Financials.MortgagePaymentMonthly, prev.Financials.MortgagePaymentMonthly)
	}
}
