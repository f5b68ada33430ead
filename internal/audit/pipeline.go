package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/propquant/internal/extraction"
	"github.com/joelkehle/propquant/internal/underwriting"
)

const tracerName = "github.com/joelkehle/propquant/internal/audit"

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type StageProgressFn func(stage, message string)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (extraction.ListingPage, error)
}

type PropertyExtractor interface {
	ExtractProperty(ctx context.Context, page extraction.ListingPage) (underwriting.PropertyData, extraction.StageAttemptMetrics, error)
	AssessRisks(ctx context.Context, property underwriting.PropertyData) ([]underwriting.RiskFactor, extraction.StageAttemptMetrics, error)
}

// Issuer stamps finished analyses with an id and a timestamp.
type Issuer struct {
	NewID func() string
	Now   func() time.Time
}

var DefaultIssuer = Issuer{NewID: uuid.NewString, Now: time.Now}

// Underwrite runs the deterministic core over already-materialized inputs.
func (is Issuer) Underwrite(property underwriting.PropertyData, risks []underwriting.RiskFactor, config underwriting.AnalysisConfig) (underwriting.AnalysisResult, error) {
	rep, err := underwriting.Analyze(property, risks, config)
	if err != nil {
		return underwriting.AnalysisResult{}, err
	}
	return underwriting.NewAnalysisResult(is.NewID(), is.Now(), property, risks, rep), nil
}

// Rerun underwrites the extracted inputs of a stored analysis under config
// without calling the model again. The result gets a fresh id and timestamp.
func (is Issuer) Rerun(prev underwriting.AnalysisResult, config underwriting.AnalysisConfig) (underwriting.AnalysisResult, error) {
	return is.Underwrite(prev.Property, prev.Risks, config)
}

func Underwrite(property underwriting.PropertyData, risks []underwriting.RiskFactor, config underwriting.AnalysisConfig) (underwriting.AnalysisResult, error) {
	return DefaultIssuer.Underwrite(property, risks, config)
}

type Pipeline struct {
	fetcher   Fetcher
	extractor PropertyExtractor
	issuer    Issuer
	tracer    trace.Tracer
}

func NewPipeline(fetcher Fetcher, extractor PropertyExtractor) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		issuer:    DefaultIssuer,
		tracer:    otel.Tracer(tracerName),
	}
}

// WithIssuer replaces the id and clock source.
func (p *Pipeline) WithIssuer(is Issuer) *Pipeline {
	p.issuer = is
	return p
}

func (p *Pipeline) Run(ctx context.Context, req Request, progress StageProgressFn) (PipelineResult, error) {
	res := PipelineResult{
		Request:  req,
		Attempts: map[string]extraction.StageAttemptMetrics{},
		Metadata: PipelineMetadata{StartedAt: p.issuer.Now().UTC(), Profile: req.Profile},
	}
	if strings.TrimSpace(req.URL) == "" {
		return res, &StageError{Stage: StageFetch, Err: errors.New("url is required")}
	}
	if err := underwriting.ValidateConfig(req.Config); err != nil {
		return res, &StageError{Stage: StageUnderwrite, Err: err}
	}

	ctx, span := p.tracer.Start(ctx, "audit.pipeline", trace.WithAttributes(attribute.String("listing.url", req.URL)))
	defer span.End()

	var (
		property underwriting.PropertyData
		risks    []underwriting.RiskFactor
	)
	stages := []struct {
		name    string
		message string
		run     func(context.Context) (*extraction.StageAttemptMetrics, error)
	}{
		{StageFetch, "Fetching listing...", func(ctx context.Context) (*extraction.StageAttemptMetrics, error) {
			var err error
			res.Page, err = p.fetcher.Fetch(ctx, req.URL)
			return nil, err
		}},
		{StageExtract, "Extracting property facts...", func(ctx context.Context) (*extraction.StageAttemptMetrics, error) {
			var (
				m   extraction.StageAttemptMetrics
				err error
			)
			property, m, err = p.extractor.ExtractProperty(ctx, res.Page)
			return &m, err
		}},
		{StageAssessRisk, "Assessing risk...", func(ctx context.Context) (*extraction.StageAttemptMetrics, error) {
			var (
				m   extraction.StageAttemptMetrics
				err error
			)
			risks, m, err = p.extractor.AssessRisks(ctx, property)
			return &m, err
		}},
		{StageUnderwrite, "Underwriting...", func(context.Context) (*extraction.StageAttemptMetrics, error) {
			var err error
			res.Analysis, err = p.issuer.Underwrite(property, risks, req.Config)
			return nil, err
		}},
	}
	for _, st := range stages {
		if err := p.runStage(ctx, &res, st.name, st.message, progress, st.run); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return p.finalize(res), err
		}
	}
	span.SetAttributes(
		attribute.String("analysis.id", res.Analysis.ID),
		attribute.Int("analysis.final_score", res.Analysis.InstitutionalScores.FinalScore),
	)
	return p.finalize(res), nil
}

func (p *Pipeline) runStage(ctx context.Context, res *PipelineResult, stage, message string, progress StageProgressFn, run func(context.Context) (*extraction.StageAttemptMetrics, error)) error {
	emit(progress, stage, message)
	ctx, span := p.tracer.Start(ctx, "audit."+stage)
	defer span.End()

	m, err := run(ctx)
	if m != nil {
		res.Attempts[stage] = *m
		span.SetAttributes(attribute.Int("llm.attempts", m.Attempts), attribute.Int("llm.repairs", m.Repairs))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.Metadata.StageFailed = stage
		return &StageError{Stage: stage, Err: err}
	}
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, stage)
	return nil
}

func (p *Pipeline) finalize(res PipelineResult) PipelineResult {
	res.Metadata.CompletedAt = p.issuer.Now().UTC()
	res.Metadata.StageAttempts = map[string]int{}
	res.Metadata.StageContentRetries = map[string]int{}
	for stage, m := range res.Attempts {
		res.Metadata.StageAttempts[stage] = m.Attempts
		res.Metadata.StageContentRetries[stage] = m.ContentRetries
		res.Metadata.TotalLLMCalls += m.Attempts
		res.Metadata.TotalRepairs += m.Repairs
		if m.Attempts > 1 {
			res.Metadata.TotalRetries += m.Attempts - 1
		}
	}
	return res
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}
