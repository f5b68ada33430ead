package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/joelkehle/propquant/internal/underwriting"
)

const propertyJSON = `{
  "price": 300000,
  "location": {"city": "Austin", "suburb": "Mueller", "country": "US"},
  "type": "townhouse",
  "year_built": 2015,
  "condition": "Good",
  "size_sqm": 140,
  "bedrooms": 3,
  "bathrooms": 2,
  "hoa_levies_monthly": 150,
  "property_taxes_annual": 3600,
  "currency": "usd",
  "confidence": "medium",
  "is_estimated": {"price": false, "levies": false, "taxes": true, "rental": true, "size": false},
  "inferred_market_data": {"avg_monthly_rental": 2400, "vacancy_rate": 2, "annual_appreciation": 3, "effective_tax_rate": 1.2},
  "structural_sub_scores": null,
  "grounding_sources": [{"title": "Rent comps", "uri": "https://comps.example.com/austin"}]
}`

func testPage() ListingPage {
	return ListingPage{URL: "https://listings.example.com/1", Title: "3 bed townhouse", Text: "Asking $300,000."}
}

func newTestExtractor(c LLMCaller) *Extractor {
	return &Extractor{exec: newTestExecutor(c)}
}

func TestExtractPropertyNormalizes(t *testing.T) {
	caller := &fakeCaller{responses: []string{propertyJSON}}
	p, m, err := newTestExtractor(caller).ExtractProperty(context.Background(), testPage())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if m.Attempts != 1 {
		t.Fatalf("unexpected attempts: %d", m.Attempts)
	}
	if p.Currency != "USD" || p.Condition == nil || *p.Condition != underwriting.ConditionGood {
		t.Fatalf("unexpected normalization: currency=%s condition=%v", p.Currency, p.Condition)
	}
	if p.YearBuilt == nil || *p.YearBuilt != 2015 {
		t.Fatalf("unexpected year built: %v", p.YearBuilt)
	}
	if len(p.GroundingSources) != 2 || p.GroundingSources[0].URI != "https://listings.example.com/1" {
		t.Fatalf("listing url should be the first source: %+v", p.GroundingSources)
	}
	if !p.IsEstimated.Rental || p.URL != "https://listings.example.com/1" {
		t.Fatalf("unexpected property: %+v", p)
	}
	if !strings.Contains(caller.prompts[0], "Asking $300,000.") {
		t.Fatal("page text should be in the prompt")
	}
}

func TestExtractPropertyRetriesInvalidRecord(t *testing.T) {
	bad := strings.Replace(propertyJSON, `"price": 300000`, `"price": 0`, 1)
	caller := &fakeCaller{responses: []string{bad, propertyJSON}}
	p, m, err := newTestExtractor(caller).ExtractProperty(context.Background(), testPage())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if m.Attempts != 2 || p.Price != 300000 {
		t.Fatalf("expected second attempt to succeed: metrics=%+v price=%f", m, p.Price)
	}
	if !strings.Contains(caller.prompts[1], "price must be > 0") {
		t.Fatalf("expected validation feedback, got %q", caller.prompts[1])
	}
}

func TestExtractPropertyDropsFieldsFromRejectedAttempt(t *testing.T) {
	rejected := strings.Replace(propertyJSON, `"price": 300000`, `"price": 0`, 1)
	rejected = strings.Replace(rejected, `"year_built": 2015`, `"year_built": 1901`, 1)
	rejected = strings.Replace(rejected, `"structural_sub_scores": null`,
		`"structural_sub_scores": {"roof_exterior": 10, "plumbing_water": 10, "hvac_electrical": 10, "guidance": "bad"}`, 1)
	accepted := strings.Replace(propertyJSON, `"year_built": 2015,`, "", 1)
	accepted = strings.Replace(accepted, `"structural_sub_scores": null,`, "", 1)
	if strings.Contains(accepted, "year_built") || strings.Contains(accepted, "structural_sub_scores") {
		t.Fatal("fixture should omit year_built and structural_sub_scores")
	}

	caller := &fakeCaller{responses: []string{rejected, accepted}}
	p, m, err := newTestExtractor(caller).ExtractProperty(context.Background(), testPage())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if m.Attempts != 2 {
		t.Fatalf("expected a retry, got %+v", m)
	}
	if p.StructuralSubScores != nil {
		t.Fatalf("structural scores from the rejected attempt survived: %+v", *p.StructuralSubScores)
	}
	if p.YearBuilt != nil {
		t.Fatalf("year built from the rejected attempt survived: %d", *p.YearBuilt)
	}
}

func TestExtractPropertyUnknownConditionIsAbsent(t *testing.T) {
	raw := strings.Replace(propertyJSON, `"condition": "Good"`, `"condition": "unknown"`, 1)
	p, _, err := newTestExtractor(&fakeCaller{responses: []string{raw}}).ExtractProperty(context.Background(), testPage())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if p.Condition != nil {
		t.Fatalf("expected no condition, got %v", *p.Condition)
	}
}

func TestAssessRisksRequiresEveryDimension(t *testing.T) {
	partial := `{"risks": [{"id": "market", "label": "Market", "score": 70, "description": "steady"}]}`
	full := `{"risks": [
	  {"id": "market", "label": "Market", "score": 70, "description": "steady"},
	  {"id": "location", "label": "Location", "score": 80, "description": "transit"},
	  {"id": "structural", "label": "Structural", "score": 65, "description": "roof"},
	  {"id": "regulatory", "label": "Regulatory", "score": 75, "description": "zoning"},
	  {"id": "liquidity", "label": "Liquidity", "score": 60, "description": "thin"}
	]}`
	caller := &fakeCaller{responses: []string{partial, full}}
	p, _, _ := newTestExtractor(&fakeCaller{responses: []string{propertyJSON}}).ExtractProperty(context.Background(), testPage())
	risks, m, err := newTestExtractor(caller).AssessRisks(context.Background(), p)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if len(risks) != 5 || m.Attempts != 2 {
		t.Fatalf("unexpected result: risks=%d metrics=%+v", len(risks), m)
	}
	if !strings.Contains(caller.prompts[1], "missing risk dimensions") {
		t.Fatalf("expected feedback listing missing dimensions: %q", caller.prompts[1])
	}
	if !strings.Contains(caller.prompts[0], "Austin") {
		t.Fatal("risk prompt should describe the property")
	}
}

func TestAssessRisksRejectsOutOfRangeScores(t *testing.T) {
	bad := `{"risks": [{"id": "market", "score": 140}]}`
	caller := &fakeCaller{responses: []string{bad, bad, bad}}
	_, m, err := newTestExtractor(caller).AssessRisks(context.Background(), underwriting.PropertyData{})
	if err == nil || !strings.Contains(err.Error(), "failed validation") {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if m.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", m.Attempts)
	}
}
