package underwriting

import "time"

const Disclaimer = "This is an automated underwriting audit built from extracted listing data and inferred market figures. " +
	"It is not an appraisal, lending decision, or investment recommendation."

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionGood    Condition = "good"
	ConditionAverage Condition = "average"
	ConditionPoor    Condition = "poor"
)

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type Location struct {
	City    string `json:"city"`
	Suburb  string `json:"suburb"`
	Country string `json:"country"`
}

// EstimationFlags marks values the extraction step inferred rather than observed.
type EstimationFlags struct {
	Price  bool `json:"price"`
	Levies bool `json:"levies"`
	Taxes  bool `json:"taxes"`
	Rental bool `json:"rental"`
	Size   bool `json:"size"`
}

type MarketData struct {
	AvgMonthlyRental   float64 `json:"avg_monthly_rental"`
	VacancyRate        float64 `json:"vacancy_rate"`
	AnnualAppreciation float64 `json:"annual_appreciation"`
	EffectiveTaxRate   float64 `json:"effective_tax_rate"`
}

type StructuralSubScores struct {
	RoofExterior   float64 `json:"roof_exterior"`
	PlumbingWater  float64 `json:"plumbing_water"`
	HVACElectrical float64 `json:"hvac_electrical"`
	Guidance       string  `json:"guidance"`
}

func (s StructuralSubScores) Mean() float64 {
	return (s.RoofExterior + s.PlumbingWater + s.HVACElectrical) / 3
}

type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// PropertyData is the normalized listing record. All monetary fields are in Currency.
type PropertyData struct {
	URL                 string               `json:"url,omitempty"`
	Price               float64              `json:"price"`
	Location            Location             `json:"location"`
	Type                string               `json:"type"`
	YearBuilt           *int                 `json:"year_built,omitempty"`
	Condition           *Condition           `json:"condition,omitempty"`
	SizeSqm             float64              `json:"size_sqm"`
	Bedrooms            int                  `json:"bedrooms"`
	Bathrooms           int                  `json:"bathrooms"`
	HOALeviesMonthly    float64              `json:"hoa_levies_monthly"`
	PropertyTaxesAnnual float64              `json:"property_taxes_annual"`
	Currency            string               `json:"currency"`
	Confidence          ConfidenceLevel      `json:"confidence"`
	IsEstimated         EstimationFlags      `json:"is_estimated"`
	InferredMarketData  MarketData           `json:"inferred_market_data"`
	StructuralSubScores *StructuralSubScores `json:"structural_sub_scores,omitempty"`
	GroundingSources    []GroundingSource    `json:"grounding_sources,omitempty"`
}

// AnalysisConfig holds the investor assumptions. Percentages are expressed as
// percent values (20 means 20%).
type AnalysisConfig struct {
	DownPaymentPct float64 `json:"down_payment_pct" yaml:"down_payment_pct"`
	InterestRate   float64 `json:"interest_rate" yaml:"interest_rate"`
	LoanTermYears  int     `json:"loan_term_years" yaml:"loan_term_years"`
	MaintenancePct float64 `json:"maintenance_pct" yaml:"maintenance_pct"`
	InsurancePct   float64 `json:"insurance_pct" yaml:"insurance_pct"`
	ManagementPct  float64 `json:"management_pct" yaml:"management_pct"`
	SelfManaged    bool    `json:"self_managed" yaml:"self_managed"`
}

type ExpenseBreakdown struct {
	PropertyTaxes  float64 `json:"property_taxes"`
	HOALevies      float64 `json:"hoa_levies"`
	Maintenance    float64 `json:"maintenance"`
	Insurance      float64 `json:"insurance"`
	Management     float64 `json:"management"`
	MaintenancePct float64 `json:"maintenance_pct"`
	ManagementPct  float64 `json:"management_pct"`
	SelfManaged    bool    `json:"self_managed"`
}

func (e ExpenseBreakdown) Total() float64 {
	return e.PropertyTaxes + e.HOALevies + e.Maintenance + e.Insurance + e.Management
}

type LoanTerms struct {
	DownPayment   float64 `json:"down_payment"`
	ClosingCosts  float64 `json:"closing_costs"`
	Principal     float64 `json:"principal"`
	AnnualRatePct float64 `json:"annual_rate_pct"`
	TermYears     int     `json:"term_years"`
}

func (l LoanTerms) CashInvested() float64 { return l.DownPayment + l.ClosingCosts }

// Financials is derived from PropertyData and AnalysisConfig. Expense amounts
// are annual unless the field name says otherwise.
type Financials struct {
	GrossRentalYield       float64 `json:"gross_rental_yield"`
	NetRentalYield         float64 `json:"net_rental_yield"`
	MonthlyCashFlow        float64 `json:"monthly_cash_flow"`
	AnnualNOI              float64 `json:"annual_noi"`
	CapRate                float64 `json:"cap_rate"`
	CashOnCash             float64 `json:"cash_on_cash"`
	BreakEvenYears         float64 `json:"break_even_years"`
	MortgagePaymentMonthly float64 `json:"mortgage_payment_monthly"`
	TotalAnnualExpenses    float64 `json:"total_annual_expenses"`
	DSCR                   float64 `json:"dscr"`

	EffectiveVacancyPct        float64          `json:"effective_vacancy_pct"`
	GrossRentalIncomeAnnual    float64          `json:"gross_rental_income_annual"`
	EffectiveGrossIncomeAnnual float64          `json:"effective_gross_income_annual"`
	Expenses                   ExpenseBreakdown `json:"expenses"`
	Loan                       LoanTerms        `json:"loan"`
}

// RiskFactor is produced by the external risk assessment. Score is 0-100, higher is safer.
type RiskFactor struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

type SanityCheck struct {
	ID        string   `json:"id"`
	Type      Severity `json:"type"`
	Message   string   `json:"message"`
	Triggered bool     `json:"triggered"`
}

type InstitutionalScores struct {
	AssetQualityScore     int      `json:"asset_quality_score"`
	DealEconomicsScore    int      `json:"deal_economics_score"`
	LeverageImpactScore   int      `json:"leverage_impact_score"`
	FinalScore            int      `json:"final_score"`
	Tier                  Tier     `json:"tier"`
	Verdict               string   `json:"verdict"`
	ScoreExplanation      string   `json:"score_explanation"`
	MitigationSuggestions []string `json:"mitigation_suggestions"`
}

type SensitivityAnalysis struct {
	Label           string  `json:"label"`
	Rate            float64 `json:"rate"`
	MonthlyCashFlow float64 `json:"monthly_cash_flow"`
	NetYield        float64 `json:"net_yield"`
}

type Projection struct {
	Year   int     `json:"year"`
	Value  float64 `json:"value"`
	Equity float64 `json:"equity"`
}

// Report bundles the five core artifacts for one property.
type Report struct {
	Config              AnalysisConfig        `json:"config"`
	Financials          Financials            `json:"financials"`
	SanityChecks        []SanityCheck         `json:"sanity_checks"`
	InstitutionalScores InstitutionalScores   `json:"institutional_scores"`
	Sensitivity         []SensitivityAnalysis `json:"sensitivity"`
	Projections         []Projection          `json:"projections"`
}

// AnalysisResult is the write-once report envelope. Identity and timestamp are
// supplied by the caller.
type AnalysisResult struct {
	ID                  string                `json:"id"`
	Timestamp           time.Time             `json:"timestamp"`
	Property            PropertyData          `json:"property"`
	Config              AnalysisConfig        `json:"config"`
	Financials          Financials            `json:"financials"`
	Risks               []RiskFactor          `json:"risks"`
	SanityChecks        []SanityCheck         `json:"sanity_checks"`
	InstitutionalScores InstitutionalScores   `json:"institutional_scores"`
	Sensitivity         []SensitivityAnalysis `json:"sensitivity"`
	Projections         []Projection          `json:"projections"`
}

func NewAnalysisResult(id string, ts time.Time, property PropertyData, risks []RiskFactor, rep Report) AnalysisResult {
	return AnalysisResult{
		ID:                  id,
		Timestamp:           ts.UTC(),
		Property:            property,
		Config:              rep.Config,
		Financials:          rep.Financials,
		Risks:               append([]RiskFactor(nil), risks...),
		SanityChecks:        rep.SanityChecks,
		InstitutionalScores: rep.InstitutionalScores,
		Sensitivity:         rep.Sensitivity,
		Projections:         rep.Projections,
	}
}
