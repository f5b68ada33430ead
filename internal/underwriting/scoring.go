package underwriting

import (
	"fmt"
	"math"
	"sort"
)

// CalculateInstitutionalScores combines asset quality, deal economics and
// leverage into the final conviction score.
func CalculateInstitutionalScores(property PropertyData, financials Financials, risks []RiskFactor) (InstitutionalScores, error) {
	if err := ValidateProperty(property); err != nil {
		return InstitutionalScores{}, err
	}
	if err := ValidateRisks(risks); err != nil {
		return InstitutionalScores{}, err
	}
	if err := validateFinancials(financials); err != nil {
		return InstitutionalScores{}, err
	}

	asset := roundScore(assetQuality(property, risks))
	deal := roundScore(dealEconomics(property, financials))
	leverage := roundScore(leverageImpact(financials))

	w := FinalScoreWeights
	final := roundScore(w.AssetQuality*float64(asset) + w.DealEconomics*float64(deal) + w.LeverageImpact*float64(leverage))
	band := BandFor(final)

	subs := []subScore{
		{dimension: dimensionAsset, score: asset},
		{dimension: dimensionDeal, score: deal},
		{dimension: dimensionLeverage, score: leverage},
	}
	return InstitutionalScores{
		AssetQualityScore:     asset,
		DealEconomicsScore:    deal,
		LeverageImpactScore:   leverage,
		FinalScore:            final,
		Tier:                  band.Tier,
		Verdict:               band.Verdict,
		ScoreExplanation:      explain(final, band, subs),
		MitigationSuggestions: mitigations(property, financials, subs),
	}, nil
}

// assetQuality weights structure, condition and external risk. Components
// that are absent are dropped and the remaining weights renormalized.
func assetQuality(p PropertyData, risks []RiskFactor) float64 {
	w := AssetQualityWeights
	total, weight := 0.0, 0.0
	if p.StructuralSubScores != nil {
		total += w.Structural * p.StructuralSubScores.Mean()
		weight += w.Structural
	}
	if p.Condition != nil {
		total += w.Condition * ConditionScores[*p.Condition]
		weight += w.Condition
	}
	total += w.Risk * meanRisk(risks)
	weight += w.Risk
	return total / weight
}

func meanRisk(risks []RiskFactor) float64 {
	sum := 0.0
	for _, r := range risks {
		sum += r.Score
	}
	return sum / float64(len(risks))
}

func dealEconomics(p PropertyData, f Financials) float64 {
	ref := referenceYield(p.InferredMarketData)
	w := DealEconomicsWeights
	return w.CapRate*piecewise(yieldSpreadBands, f.CapRate-ref) +
		w.NetYield*piecewise(yieldSpreadBands, f.NetRentalYield-ref) +
		w.CashOnCash*piecewise(cashOnCashBands, f.CashOnCash)
}

func leverageImpact(f Financials) float64 {
	var score float64
	switch {
	case f.DSCR < dscrMinimum:
		score = math.Min(piecewise(leverageBelowOneBands, f.DSCR), leverageBelowOneCap)
	case f.DSCR < dscrStrong:
		score = piecewise(leverageThinBands, f.DSCR)
	default:
		score = piecewise(leverageStrongBands, f.DSCR)
	}
	if f.MonthlyCashFlow <= 0 {
		score = math.Min(score, leverageNoCashFlowCap)
	}
	return score
}

func roundScore(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

type dimension string

const (
	dimensionAsset    dimension = "asset quality"
	dimensionDeal     dimension = "deal economics"
	dimensionLeverage dimension = "leverage impact"
)

type subScore struct {
	dimension dimension
	score     int
}

func explain(final int, band ScoreBand, subs []subScore) string {
	ordered := append([]subScore(nil), subs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].score > ordered[j].score })
	strongest, weakest := ordered[0], ordered[len(ordered)-1]
	if strongest.score == weakest.score {
		return fmt.Sprintf("Final score %d (%s). All three dimensions score %d.", final, band.Label, strongest.score)
	}
	return fmt.Sprintf("Final score %d (%s). Strongest driver is %s at %d; weakest is %s at %d (%s).",
		final, band.Label, strongest.dimension, strongest.score, weakest.dimension, weakest.score, BandFor(weakest.score).Label)
}

// mitigations returns one suggestion per sub-score below MitigationThreshold,
// in asset, deal, leverage order.
func mitigations(p PropertyData, f Financials, subs []subScore) []string {
	out := []string{}
	for _, s := range subs {
		if s.score >= MitigationThreshold {
			continue
		}
		out = append(out, mitigationFor(s.dimension, p, f))
	}
	return out
}

func mitigationFor(d dimension, p PropertyData, f Financials) string {
	switch d {
	case dimensionAsset:
		if p.StructuralSubScores == nil {
			return "Commission a structural survey (roof, plumbing, electrical) before committing."
		}
		return "Obtain contractor quotes for the weakest structural systems and negotiate the price down accordingly."
	case dimensionDeal:
		if f.EffectiveVacancyPct > HighVacancyPct {
			return "Verify rental comps and vacancy with a local agent; the yield depends on occupancy assumptions."
		}
		return "Negotiate the purchase price or verify achievable rent with local comps to lift the yield."
	default:
		if f.DSCR < dscrMinimum {
			return "Increase the down payment or negotiate the price so that NOI covers debt service."
		}
		return "Increase the down payment or shop for a lower rate to widen the debt service cushion."
	}
}
