package underwriting

import "math"

// GenerateSensitivity recomputes cash flow and net yield at the configured rate
// and one step either side. Rows are ordered low, base, high.
func GenerateSensitivity(property PropertyData, config AnalysisConfig) ([]SensitivityAnalysis, error) {
	if err := ValidateProperty(property); err != nil {
		return nil, err
	}
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	scenarios := []struct {
		label string
		rate  float64
	}{
		{"Low", math.Max(0, config.InterestRate-SensitivityStepPct)},
		{"Base", config.InterestRate},
		{"High", config.InterestRate + SensitivityStepPct},
	}
	rows := make([]SensitivityAnalysis, 0, len(scenarios))
	for _, s := range scenarios {
		f := computeFinancials(property, config, s.rate)
		rows = append(rows, SensitivityAnalysis{
			Label:           s.label,
			Rate:            s.rate,
			MonthlyCashFlow: f.MonthlyCashFlow,
			NetYield:        f.NetRentalYield,
		})
	}
	return rows, nil
}
