package underwriting

import "golang.org/x/sync/errgroup"

// Analyze runs the calculator, then the sanity checks, scorer, sensitivity and
// projections concurrently over the same immutable inputs.
func Analyze(property PropertyData, risks []RiskFactor, config AnalysisConfig) (Report, error) {
	financials, err := CalculateFinancials(property, config)
	if err != nil {
		return Report{}, err
	}
	if err := ValidateRisks(risks); err != nil {
		return Report{}, err
	}

	rep := Report{Config: config, Financials: financials}
	var g errgroup.Group
	g.Go(func() error {
		rep.SanityChecks = RunSanityChecks(property, financials)
		return nil
	})
	g.Go(func() error {
		scores, err := CalculateInstitutionalScores(property, financials, risks)
		rep.InstitutionalScores = scores
		return err
	})
	g.Go(func() error {
		rows, err := GenerateSensitivity(property, config)
		rep.Sensitivity = rows
		return err
	})
	g.Go(func() error {
		rep.Projections = GenerateProjections(property, financials)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return rep, nil
}
