package underwriting

// Institutional floors applied regardless of extracted estimates.
var InstitutionalFloors = struct {
	VacancyMinPct     float64
	VacancyDefaultPct float64
	ClosingCostsPct   float64
}{
	VacancyMinPct:     4.0,
	VacancyDefaultPct: 5.0,
	ClosingCostsPct:   4.0,
}

type MaintenanceTier string

const (
	MaintenanceNewBuild  MaintenanceTier = "new_build"
	MaintenanceExcellent MaintenanceTier = "excellent"
	MaintenanceAverage   MaintenanceTier = "average"
	MaintenanceDeferred  MaintenanceTier = "deferred"
)

var MaintenanceTiers = map[MaintenanceTier]float64{
	MaintenanceNewBuild:  0.6,
	MaintenanceExcellent: 0.8,
	MaintenanceAverage:   1.0,
	MaintenanceDeferred:  1.25,
}

// MaintenanceTierFor returns the tier whose percentage equals pct.
func MaintenanceTierFor(pct float64) (MaintenanceTier, bool) {
	for tier, v := range MaintenanceTiers {
		if v == pct {
			return tier, true
		}
	}
	return "", false
}

func DefaultConfig() AnalysisConfig {
	return AnalysisConfig{
		DownPaymentPct: 20,
		InterestRate:   6.8,
		LoanTermYears:  30,
		MaintenancePct: MaintenanceTiers[MaintenanceAverage],
		InsurancePct:   0.5,
		ManagementPct:  8.0,
		SelfManaged:    false,
	}
}

const (
	// DSCRUnbounded is reported when there is no debt service.
	DSCRUnbounded = 999.0
	// BreakEvenNever is reported when annual cash flow is not positive.
	BreakEvenNever = 999.0

	ProjectionYears          = 10
	SensitivityStepPct       = 1.0
	DeepNegativeRentMultiple = 0.25
	HighVacancyPct           = 10.0

	dscrStrong  = 1.25
	dscrMinimum = 1.0
)

type Tier string

const (
	TierPoor    Tier = "poor"
	TierAverage Tier = "average"
	TierGood    Tier = "good"
	TierStrong  Tier = "strong"
)

type ScoreBand struct {
	Tier    Tier
	Min     int
	Max     int
	Label   string
	Verdict string
}

// ScoreBands is ordered from lowest to highest. Every scorer and the report
// resolve tiers through TierFor.
var ScoreBands = []ScoreBand{
	{Tier: TierPoor, Min: 0, Max: 40, Label: "Poor", Verdict: "Pass: fundamentals do not support the asking price"},
	{Tier: TierAverage, Min: 41, Max: 60, Label: "Average", Verdict: "Proceed with caution: marginal deal"},
	{Tier: TierGood, Min: 61, Max: 75, Label: "Good", Verdict: "Investable: solid fundamentals"},
	{Tier: TierStrong, Min: 76, Max: 100, Label: "Strong", Verdict: "High conviction: institutional grade"},
}

func BandFor(score int) ScoreBand {
	if score < ScoreBands[0].Min {
		return ScoreBands[0]
	}
	for _, b := range ScoreBands {
		if score <= b.Max {
			return b
		}
	}
	return ScoreBands[len(ScoreBands)-1]
}

func TierFor(score int) Tier { return BandFor(score).Tier }

func bandMin(t Tier) int {
	for _, b := range ScoreBands {
		if b.Tier == t {
			return b.Min
		}
	}
	return 0
}

// MitigationThreshold is the lowest sub-score that needs no mitigation.
var MitigationThreshold = bandMin(TierGood)

var AssetQualityWeights = struct {
	Structural float64
	Condition  float64
	Risk       float64
}{Structural: 0.4, Condition: 0.2, Risk: 0.4}

var DealEconomicsWeights = struct {
	CapRate    float64
	NetYield   float64
	CashOnCash float64
}{CapRate: 0.4, NetYield: 0.2, CashOnCash: 0.4}

var FinalScoreWeights = struct {
	AssetQuality   float64
	DealEconomics  float64
	LeverageImpact float64
}{AssetQuality: 0.35, DealEconomics: 0.35, LeverageImpact: 0.30}

var ConditionScores = map[Condition]float64{
	ConditionNew:     95,
	ConditionGood:    80,
	ConditionAverage: 60,
	ConditionPoor:    30,
}

// Regional yield reference. The benchmark falls as expected appreciation rises.
const (
	referenceYieldBase          = 6.0
	referenceYieldPerAppreciate = 0.5
	referenceYieldFloor         = 3.0
)

func referenceYield(m MarketData) float64 {
	ref := referenceYieldBase - referenceYieldPerAppreciate*m.AnnualAppreciation
	if ref < referenceYieldFloor {
		return referenceYieldFloor
	}
	return ref
}

// point is one knot of a piecewise-linear band. Knot scores line up with the
// ScoreBands edges.
type point struct {
	x     float64
	score float64
}

// Cap rate and net yield are measured as the spread (pp) over the reference yield.
var yieldSpreadBands = []point{
	{-3.0, 0},
	{-1.0, 40},
	{0.0, 60},
	{1.5, 75},
	{4.0, 100},
}

var cashOnCashBands = []point{
	{-10.0, 0},
	{0.0, 40},
	{4.0, 60},
	{8.0, 75},
	{14.0, 100},
}

// Leverage bands by DSCR. Below dscrMinimum the score never exceeds
// leverageBelowOneCap; without positive cash flow it never exceeds
// leverageNoCashFlowCap.
var (
	leverageBelowOneBands = []point{{0.0, 0}, {dscrMinimum, 40}}
	leverageThinBands     = []point{{dscrMinimum, 45}, {dscrStrong, 75}}
	leverageStrongBands   = []point{{dscrStrong, 76}, {2.0, 100}}
)

const (
	leverageBelowOneCap   = 40
	leverageNoCashFlowCap = 60
)

func piecewise(bands []point, x float64) float64 {
	if x <= bands[0].x {
		return bands[0].score
	}
	for i := 1; i < len(bands); i++ {
		if x <= bands[i].x {
			lo, hi := bands[i-1], bands[i]
			return lo.score + (x-lo.x)/(hi.x-lo.x)*(hi.score-lo.score)
		}
	}
	return bands[len(bands)-1].score
}
