package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joelkehle/propquant/internal/underwriting"
)

const (
	StageExtract    = "extract"
	StageAssessRisk = "assess_risk"
)

// RiskDimensions are the dimensions every assessment must cover.
var RiskDimensions = []struct {
	ID    string
	Label string
}{
	{"market", "Market & Demand"},
	{"location", "Location & Neighbourhood"},
	{"structural", "Structural & Physical"},
	{"regulatory", "Regulatory & Legal"},
	{"liquidity", "Liquidity & Exit"},
}

// Extractor turns a fetched listing into validated core inputs.
type Extractor struct {
	exec *StageExecutor
}

func NewExtractor(caller LLMCaller) *Extractor {
	return &Extractor{exec: NewStageExecutor(caller)}
}

type propertyExtraction struct {
	Price               float64                           `json:"price"`
	Location            underwriting.Location             `json:"location"`
	Type                string                            `json:"type"`
	YearBuilt           int                               `json:"year_built"`
	Condition           string                            `json:"condition"`
	SizeSqm             float64                           `json:"size_sqm"`
	Bedrooms            int                               `json:"bedrooms"`
	Bathrooms           int                               `json:"bathrooms"`
	HOALeviesMonthly    float64                           `json:"hoa_levies_monthly"`
	PropertyTaxesAnnual float64                           `json:"property_taxes_annual"`
	Currency            string                            `json:"currency"`
	Confidence          string                            `json:"confidence"`
	IsEstimated         underwriting.EstimationFlags      `json:"is_estimated"`
	InferredMarketData  underwriting.MarketData           `json:"inferred_market_data"`
	StructuralSubScores *underwriting.StructuralSubScores `json:"structural_sub_scores"`
	GroundingSources    []underwriting.GroundingSource    `json:"grounding_sources"`
}

func (e propertyExtraction) validate() error {
	var problems []string
	if e.Price <= 0 {
		problems = append(problems, "price must be > 0")
	}
	if e.InferredMarketData.AvgMonthlyRental <= 0 {
		problems = append(problems, "inferred_market_data.avg_monthly_rental must be > 0")
	}
	if len(strings.TrimSpace(e.Currency)) != 3 {
		problems = append(problems, "currency must be an ISO 4217 code")
	}
	if strings.TrimSpace(e.Location.City) == "" && strings.TrimSpace(e.Location.Country) == "" {
		problems = append(problems, "location.city or location.country is required")
	}
	switch normalizeEnum(e.Confidence) {
	case "low", "medium", "high":
	default:
		problems = append(problems, "confidence must be low|medium|high")
	}
	switch normalizeEnum(e.Condition) {
	case "", "unknown", "new", "good", "average", "poor":
	default:
		problems = append(problems, "condition must be new|good|average|poor or empty")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (e propertyExtraction) toProperty(sourceURL string) underwriting.PropertyData {
	p := underwriting.PropertyData{
		URL:                 sourceURL,
		Price:               e.Price,
		Location:            e.Location,
		Type:                strings.TrimSpace(e.Type),
		SizeSqm:             e.SizeSqm,
		Bedrooms:            e.Bedrooms,
		Bathrooms:           e.Bathrooms,
		HOALeviesMonthly:    e.HOALeviesMonthly,
		PropertyTaxesAnnual: e.PropertyTaxesAnnual,
		Currency:            strings.ToUpper(strings.TrimSpace(e.Currency)),
		Confidence:          underwriting.ConfidenceLevel(normalizeEnum(e.Confidence)),
		IsEstimated:         e.IsEstimated,
		InferredMarketData:  e.InferredMarketData,
		StructuralSubScores: e.StructuralSubScores,
	}
	if e.YearBuilt > 0 {
		y := e.YearBuilt
		p.YearBuilt = &y
	}
	if c := normalizeEnum(e.Condition); c != "" && c != "unknown" {
		cond := underwriting.Condition(c)
		p.Condition = &cond
	}
	if sourceURL != "" {
		p.GroundingSources = append(p.GroundingSources, underwriting.GroundingSource{Title: "Listing", URI: sourceURL})
	}
	for _, s := range e.GroundingSources {
		if strings.TrimSpace(s.URI) == "" || s.URI == sourceURL {
			continue
		}
		p.GroundingSources = append(p.GroundingSources, s)
	}
	return p
}

// ExtractProperty asks the model for a PropertyData record. The result always
// passes underwriting.ValidateProperty.
func (x *Extractor) ExtractProperty(ctx context.Context, page ListingPage) (underwriting.PropertyData, StageAttemptMetrics, error) {
	var out propertyExtraction
	var property underwriting.PropertyData
	metrics, err := x.exec.Run(ctx, StageExtract, propertyPrompt(page), &out, func() error {
		if err := out.validate(); err != nil {
			return err
		}
		property = out.toProperty(page.URL)
		return underwriting.ValidateProperty(property)
	})
	if err != nil {
		return underwriting.PropertyData{}, metrics, err
	}
	return property, metrics, nil
}

type riskAssessment struct {
	Risks []underwriting.RiskFactor `json:"risks"`
}

func (r riskAssessment) validate() error {
	if err := underwriting.ValidateRisks(r.Risks); err != nil {
		return err
	}
	have := make(map[string]bool, len(r.Risks))
	for _, f := range r.Risks {
		have[f.ID] = true
	}
	var missing []string
	for _, d := range RiskDimensions {
		if !have[d.ID] {
			missing = append(missing, d.ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing risk dimensions: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AssessRisks scores every RiskDimensions entry for the property.
func (x *Extractor) AssessRisks(ctx context.Context, property underwriting.PropertyData) ([]underwriting.RiskFactor, StageAttemptMetrics, error) {
	var out riskAssessment
	metrics, err := x.exec.Run(ctx, StageAssessRisk, riskPrompt(property), &out, func() error { return out.validate() })
	if err != nil {
		return nil, metrics, err
	}
	return out.Risks, metrics, nil
}

func normalizeEnum(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func propertyPrompt(page ListingPage) string {
	var b strings.Builder
	b.WriteString("Extract the investment facts of this property listing and infer local market data.\n\n")
	b.WriteString(`Return JSON with this schema:
{
  "price": number,
  "location": {"city": string, "suburb": string, "country": string},
  "type": string,
  "year_built": integer or 0 when unknown,
  "condition": "new" | "good" | "average" | "poor" | "unknown",
  "size_sqm": number,
  "bedrooms": integer,
  "bathrooms": integer,
  "hoa_levies_monthly": number,
  "property_taxes_annual": number,
  "currency": ISO 4217 code,
  "confidence": "low" | "medium" | "high",
  "is_estimated": {"price": bool, "levies": bool, "taxes": bool, "rental": bool, "size": bool},
  "inferred_market_data": {"avg_monthly_rental": number, "vacancy_rate": percent, "annual_appreciation": percent, "effective_tax_rate": percent},
  "structural_sub_scores": {"roof_exterior": 0-100, "plumbing_water": 0-100, "hvac_electrical": 0-100, "guidance": string} or null,
  "grounding_sources": [{"title": string, "uri": string}]
}
`)
	b.WriteString("\nRules:\n")
	b.WriteString("- All monetary values in the listing's currency. Do not convert currencies.\n")
	b.WriteString("- Set is_estimated.<field> true whenever the value is not stated on the page.\n")
	b.WriteString("- structural_sub_scores only when the page describes the building's condition; otherwise null.\n")
	b.WriteString("- Percentages are plain numbers (5 means 5%).\n\n")
	b.WriteString(page.Prompt())
	return b.String()
}

func riskPrompt(p underwriting.PropertyData) string {
	var b strings.Builder
	b.WriteString("Assess the investment risk of this property. Score each dimension 0-100 where higher is safer.\n\n")
	b.WriteString("Dimensions (use these ids exactly):\n")
	for _, d := range RiskDimensions {
		fmt.Fprintf(&b, "- %s: %s\n", d.ID, d.Label)
	}
	b.WriteString("\nReturn JSON: {\"risks\": [{\"id\": string, \"label\": string, \"score\": number, \"description\": string}]}\n\n")
	fmt.Fprintf(&b, "PROPERTY: %s in %s, %s, %s\n", p.Type, p.Location.Suburb, p.Location.City, p.Location.Country)
	fmt.Fprintf(&b, "PRICE: %.0f %s\n", p.Price, p.Currency)
	if p.YearBuilt != nil {
		fmt.Fprintf(&b, "YEAR BUILT: %d\n", *p.YearBuilt)
	}
	if p.Condition != nil {
		fmt.Fprintf(&b, "CONDITION: %s\n", *p.Condition)
	}
	fmt.Fprintf(&b, "SIZE: %.0f sqm, %d bed / %d bath\n", p.SizeSqm, p.Bedrooms, p.Bathrooms)
	m := p.InferredMarketData
	fmt.Fprintf(&b, "MARKET: rent %.0f/month, vacancy %.1f%%, appreciation %.1f%%/yr\n", m.AvgMonthlyRental, m.VacancyRate, m.AnnualAppreciation)
	if s := p.StructuralSubScores; s != nil {
		fmt.Fprintf(&b, "STRUCTURE: roof %.0f, plumbing %.0f, hvac %.0f. %s\n", s.RoofExterior, s.PlumbingWater, s.HVACElectrical, s.Guidance)
	}
	return b.String()
}
