package audit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joelkehle/propquant/internal/underwriting"
)

// Display bands. These only affect labels in the report.
const (
	dscrHealthy   = 1.25
	dscrThin      = 1.0
	riskLowAbove  = 70
	riskHighBelow = 40
)

func BuildResponse(analysis underwriting.AnalysisResult, meta *PipelineMetadata) ResponseEnvelope {
	s := analysis.InstitutionalScores
	return ResponseEnvelope{
		ID:               analysis.ID,
		FinalScore:       s.FinalScore,
		Tier:             s.Tier,
		Verdict:          s.Verdict,
		Analysis:         analysis,
		ReportMarkdown:   BuildMarkdown(analysis),
		PipelineMetadata: meta,
		Disclaimer:       underwriting.Disclaimer,
	}
}

func BuildMarkdown(a underwriting.AnalysisResult) string {
	p := a.Property
	f := a.Financials
	s := a.InstitutionalScores
	cur := p.Currency
	var b strings.Builder

	fmt.Fprintf(&b, "# Underwriting Audit\n\n")
	fmt.Fprintf(&b, "- Analysis ID: %s\n", a.ID)
	fmt.Fprintf(&b, "- Property: %s\n", sanitize(describeProperty(p)))
	if p.URL != "" {
		fmt.Fprintf(&b, "- Listing: %s\n", sanitize(p.URL))
	}
	fmt.Fprintf(&b, "- Date: %s\n", a.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Asking price: %s\n", fmtMoney(p.Price, cur))
	fmt.Fprintf(&b, "- Extraction confidence: %s\n\n", p.Confidence)
	fmt.Fprintf(&b, "%s\n\n", underwriting.Disclaimer)

	fmt.Fprintf(&b, "## Conviction\n\n")
	fmt.Fprintf(&b, "**%d / 100 (%s)**: %s\n\n", s.FinalScore, underwriting.BandFor(s.FinalScore).Label, sanitize(s.Verdict))
	fmt.Fprintf(&b, "| Dimension | Score | Tier |\n|---|---:|---|\n")
	for _, row := range []struct {
		name  string
		score int
	}{
		{"Asset quality", s.AssetQualityScore},
		{"Deal economics", s.DealEconomicsScore},
		{"Leverage impact", s.LeverageImpactScore},
	} {
		fmt.Fprintf(&b, "| %s | %d | %s |\n", row.name, row.score, underwriting.BandFor(row.score).Label)
	}
	fmt.Fprintf(&b, "\n%s\n\n", sanitize(s.ScoreExplanation))
	if len(s.MitigationSuggestions) > 0 {
		fmt.Fprintf(&b, "### Mitigation\n\n")
		for _, m := range s.MitigationSuggestions {
			fmt.Fprintf(&b, "- %s\n", sanitize(m))
		}
		b.WriteString("\n")
	}

	if len(a.SanityChecks) > 0 {
		fmt.Fprintf(&b, "## Sanity Checks\n\n")
		for _, c := range a.SanityChecks {
			fmt.Fprintf(&b, "> **%s** `%s`: %s\n\n", strings.ToUpper(string(c.Type)), c.ID, sanitize(c.Message))
		}
	}

	if ss := p.StructuralSubScores; ss != nil {
		fmt.Fprintf(&b, "## Structural Assessment\n\n")
		fmt.Fprintf(&b, "| System | Score |\n|---|---:|\n")
		fmt.Fprintf(&b, "| Roof & exterior | %.0f |\n", ss.RoofExterior)
		fmt.Fprintf(&b, "| Plumbing & water | %.0f |\n", ss.PlumbingWater)
		fmt.Fprintf(&b, "| HVAC & electrical | %.0f |\n", ss.HVACElectrical)
		if g := sanitize(ss.Guidance); g != "" {
			fmt.Fprintf(&b, "\n%s\n", g)
		}
		b.WriteString("\n")
	}

	writeProForma(&b, f, cur)

	fmt.Fprintf(&b, "## Key Ratios\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Gross rental yield | %.2f%% |\n", f.GrossRentalYield)
	fmt.Fprintf(&b, "| Net rental yield | %.2f%% |\n", f.NetRentalYield)
	fmt.Fprintf(&b, "| Cap rate | %.2f%% |\n", f.CapRate)
	fmt.Fprintf(&b, "| Cash-on-cash | %.2f%% |\n", f.CashOnCash)
	fmt.Fprintf(&b, "| DSCR | %s (%s) |\n", fmtDSCR(f.DSCR), dscrLabel(f.DSCR))
	fmt.Fprintf(&b, "| Break-even | %s |\n", fmtBreakEven(f.BreakEvenYears))
	fmt.Fprintf(&b, "| Cash invested | %s |\n\n", fmtMoney(f.Loan.CashInvested(), cur))

	if len(a.Risks) > 0 {
		fmt.Fprintf(&b, "## Risk Model\n\n")
		fmt.Fprintf(&b, "| Risk | Score | Level | Notes |\n|---|---:|---|---|\n")
		for _, r := range a.Risks {
			fmt.Fprintf(&b, "| %s | %.0f | %s | %s |\n", sanitizeCell(riskName(r)), r.Score, riskLabel(r.Score), sanitizeCell(r.Description))
		}
		b.WriteString("\n")
	}

	if len(a.Sensitivity) > 0 {
		fmt.Fprintf(&b, "## Interest Rate Sensitivity\n\n")
		fmt.Fprintf(&b, "| Scenario | Rate | Monthly cash flow | Net yield |\n|---|---:|---:|---:|\n")
		for _, r := range a.Sensitivity {
			fmt.Fprintf(&b, "| %s | %.2f%% | %s | %.2f%% |\n", r.Label, r.Rate, fmtMoney(r.MonthlyCashFlow, cur), r.NetYield)
		}
		b.WriteString("\n")
	}

	if len(a.Projections) > 0 {
		fmt.Fprintf(&b, "## %d-Year Projection\n\n", a.Projections[len(a.Projections)-1].Year)
		fmt.Fprintf(&b, "Appreciation assumed at %.1f%% per year.\n\n", p.InferredMarketData.AnnualAppreciation)
		fmt.Fprintf(&b, "| Year | Value | Equity |\n|---:|---:|---:|\n")
		for _, r := range a.Projections {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", r.Year, fmtMoney(r.Value, cur), fmtMoney(r.Equity, cur))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Evidence\n\n")
	if len(p.GroundingSources) == 0 {
		fmt.Fprintf(&b, "- No sources supplied.\n")
	}
	for _, src := range p.GroundingSources {
		title := sanitize(src.Title)
		if title == "" {
			title = src.URI
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", title, sanitize(src.URI))
	}
	if est := estimatedList(p.IsEstimated); est != "" {
		fmt.Fprintf(&b, "- Estimated fields: %s\n", est)
	}
	b.WriteString("\n")

	c := a.Config
	fmt.Fprintf(&b, "## Assumptions\n\n")
	fmt.Fprintf(&b, "- Down payment: %.1f%%\n", c.DownPaymentPct)
	fmt.Fprintf(&b, "- Interest rate: %.2f%% over %d years\n", c.InterestRate, c.LoanTermYears)
	tier, _ := underwriting.MaintenanceTierFor(c.MaintenancePct)
	fmt.Fprintf(&b, "- Maintenance: %.2f%% of price (%s)\n", c.MaintenancePct, strings.ReplaceAll(string(tier), "_", " "))
	fmt.Fprintf(&b, "- Insurance: %.2f%% of price\n", c.InsurancePct)
	if c.SelfManaged {
		fmt.Fprintf(&b, "- Management: self-managed\n")
	} else {
		fmt.Fprintf(&b, "- Management: %.1f%% of effective gross income\n", c.ManagementPct)
	}
	fmt.Fprintf(&b, "- Vacancy floor: %.1f%%; closing costs: %.1f%% of price\n",
		underwriting.InstitutionalFloors.VacancyMinPct, underwriting.InstitutionalFloors.ClosingCostsPct)
	return b.String()
}

func writeProForma(b *strings.Builder, f underwriting.Financials, cur string) {
	e := f.Expenses
	fmt.Fprintf(b, "## Monthly Pro-Forma\n\n")
	fmt.Fprintf(b, "| Line | Monthly | Annual |\n|---|---:|---:|\n")
	row := func(label string, annual float64) {
		fmt.Fprintf(b, "| %s | %s | %s |\n", label, fmtMoney(annual/12, cur), fmtMoney(annual, cur))
	}
	row("Gross rent", f.GrossRentalIncomeAnnual)
	row(fmt.Sprintf("Effective gross income (%.1f%% vacancy)", f.EffectiveVacancyPct), f.EffectiveGrossIncomeAnnual)
	row("Property taxes", -e.PropertyTaxes)
	row("HOA levies", -e.HOALevies)
	row(fmt.Sprintf("Maintenance (%.2f%%)", e.MaintenancePct), -e.Maintenance)
	row("Insurance", -e.Insurance)
	if !e.SelfManaged {
		row(fmt.Sprintf("Management (%.1f%%)", e.ManagementPct), -e.Management)
	}
	row("**Net operating income**", f.AnnualNOI)
	row("Debt service", -f.MortgagePaymentMonthly*12)
	row("**Cash flow**", f.MonthlyCashFlow*12)
	b.WriteString("\n")
}

func describeProperty(p underwriting.PropertyData) string {
	parts := []string{}
	if p.Bedrooms > 0 {
		parts = append(parts, fmt.Sprintf("%d bed", p.Bedrooms))
	}
	if p.Type != "" {
		parts = append(parts, p.Type)
	}
	where := []string{}
	for _, s := range []string{p.Location.Suburb, p.Location.City, p.Location.Country} {
		if strings.TrimSpace(s) != "" {
			where = append(where, s)
		}
	}
	out := strings.Join(parts, " ")
	if len(where) > 0 {
		out += " in " + strings.Join(where, ", ")
	}
	if p.SizeSqm > 0 {
		out += fmt.Sprintf(" (%.0f sqm)", p.SizeSqm)
	}
	return strings.TrimSpace(out)
}

func riskName(r underwriting.RiskFactor) string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

func riskLabel(score float64) string {
	switch {
	case score >= riskLowAbove:
		return "low"
	case score >= riskHighBelow:
		return "moderate"
	default:
		return "high"
	}
}

func dscrLabel(dscr float64) string {
	switch {
	case dscr >= dscrHealthy:
		return "healthy"
	case dscr >= dscrThin:
		return "thin"
	default:
		return "deficit"
	}
}

func fmtDSCR(v float64) string {
	if v >= underwriting.DSCRUnbounded {
		return "no debt"
	}
	return fmt.Sprintf("%.2f", v)
}

func fmtBreakEven(years float64) string {
	if years >= underwriting.BreakEvenNever {
		return "never (cash flow not positive)"
	}
	return fmt.Sprintf("%.1f years", years)
}

func estimatedList(e underwriting.EstimationFlags) string {
	var out []string
	for _, f := range []struct {
		name string
		on   bool
	}{{"price", e.Price}, {"levies", e.Levies}, {"taxes", e.Taxes}, {"rental", e.Rental}, {"size", e.Size}} {
		if f.on {
			out = append(out, f.name)
		}
	}
	return strings.Join(out, ", ")
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// sanitizeCell also escapes pipes so table columns stay intact.
func sanitizeCell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}

// fmtMoney rounds to whole units for display only, e.g. "USD 1,564".
func fmtMoney(v float64, currency string) string {
	n := int64(math.Round(v))
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return sign + currency + " " + groupThousands(n)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	rem := len(s) % 3
	if rem > 0 {
		b.WriteString(s[:rem])
	}
	for i := rem; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
