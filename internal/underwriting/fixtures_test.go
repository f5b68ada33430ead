package underwriting

import "math"

func diff(a, b float64) float64 { return math.Abs(a - b) }

func conditionPtr(c Condition) *Condition { return &c }

// sampleThinDeal is a 300k listing whose NOI does not cover debt service at
// the default assumptions.
func sampleThinDeal() PropertyData {
	return PropertyData{
		URL:                 "https://listings.example.com/300k",
		Price:               300000,
		Location:            Location{City: "Austin", Suburb: "Mueller", Country: "US"},
		Type:                "townhouse",
		SizeSqm:             140,
		Bedrooms:            3,
		Bathrooms:           2,
		HOALeviesMonthly:    150,
		PropertyTaxesAnnual: 3600,
		Currency:            "USD",
		Confidence:          ConfidenceMedium,
		InferredMarketData: MarketData{
			AvgMonthlyRental:   2400,
			VacancyRate:        2,
			AnnualAppreciation: 3,
			EffectiveTaxRate:   1.2,
		},
		GroundingSources: []GroundingSource{{Title: "listing", URI: "https://listings.example.com/300k"}},
	}
}

// sampleStrongDeal covers its debt with room to spare.
func sampleStrongDeal() PropertyData {
	return PropertyData{
		Price:               250000,
		Location:            Location{City: "Cleveland", Country: "US"},
		Type:                "duplex",
		Condition:           conditionPtr(ConditionGood),
		SizeSqm:             180,
		Bedrooms:            4,
		Bathrooms:           2,
		PropertyTaxesAnnual: 2400,
		Currency:            "USD",
		Confidence:          ConfidenceHigh,
		InferredMarketData: MarketData{
			AvgMonthlyRental:   2600,
			VacancyRate:        5,
			AnnualAppreciation: 3,
			EffectiveTaxRate:   0.96,
		},
		StructuralSubScores: &StructuralSubScores{RoofExterior: 70, PlumbingWater: 75, HVACElectrical: 80, Guidance: "roof due in 5 years"},
		GroundingSources:    []GroundingSource{{Title: "county records", URI: "https://county.example.gov/parcel/1"}},
	}
}

func sampleRisks(scores ...float64) []RiskFactor {
	ids := []string{"market", "structural", "legal", "liquidity", "climate"}
	out := make([]RiskFactor, 0, len(scores))
	for i, s := range scores {
		out = append(out, RiskFactor{ID: ids[i], Label: ids[i], Score: s, Description: "assessed"})
	}
	return out
}
