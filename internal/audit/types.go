package audit

import (
	"time"

	"github.com/joelkehle/propquant/internal/extraction"
	"github.com/joelkehle/propquant/internal/underwriting"
)

const (
	StageFetch      = "fetch"
	StageExtract    = extraction.StageExtract
	StageAssessRisk = extraction.StageAssessRisk
	StageUnderwrite = "underwrite"
)

// Request is one listing audit. Config is already resolved from defaults,
// profile and overrides.
type Request struct {
	URL     string                      `json:"url"`
	Config  underwriting.AnalysisConfig `json:"config"`
	Profile string                      `json:"profile,omitempty"`
}

type PipelineMetadata struct {
	StagesExecuted      []string       `json:"stages_executed"`
	StageFailed         string         `json:"stage_failed,omitempty"`
	StartedAt           time.Time      `json:"started_at"`
	CompletedAt         time.Time      `json:"completed_at"`
	Profile             string         `json:"profile,omitempty"`
	TotalLLMCalls       int            `json:"total_llm_calls"`
	TotalRetries        int            `json:"total_retries"`
	TotalRepairs        int            `json:"total_repairs"`
	StageAttempts       map[string]int `json:"stage_attempts,omitempty"`
	StageContentRetries map[string]int `json:"stage_content_retries,omitempty"`
}

type PipelineResult struct {
	Request  Request
	Page     extraction.ListingPage
	Analysis underwriting.AnalysisResult
	Attempts map[string]extraction.StageAttemptMetrics
	Metadata PipelineMetadata
}

// ResponseEnvelope is what the API and CLI return for a finished analysis.
type ResponseEnvelope struct {
	ID               string                      `json:"id"`
	FinalScore       int                         `json:"final_score"`
	Tier             underwriting.Tier           `json:"tier"`
	Verdict          string                      `json:"verdict"`
	Analysis         underwriting.AnalysisResult `json:"analysis"`
	ReportMarkdown   string                      `json:"report_markdown"`
	PipelineMetadata *PipelineMetadata           `json:"pipeline_metadata,omitempty"`
	Disclaimer       string                      `json:"disclaimer"`
}
