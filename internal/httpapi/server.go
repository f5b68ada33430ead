package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joelkehle/propquant/internal/assumptions"
	"github.com/joelkehle/propquant/internal/audit"
	"github.com/joelkehle/propquant/internal/render"
	"github.com/joelkehle/propquant/internal/store"
	"github.com/joelkehle/propquant/internal/underwriting"
)

const (
	maxBodyBytes    = 1 << 20
	defaultPageSize = 50
)

type Store interface {
	Save(ctx context.Context, a underwriting.AnalysisResult, profile string) error
	Get(ctx context.Context, id string) (underwriting.AnalysisResult, error)
	List(ctx context.Context, limit, offset int) ([]store.Summary, error)
}

type Auditor interface {
	Run(ctx context.Context, req audit.Request, progress audit.StageProgressFn) (audit.PipelineResult, error)
}

type PDFRenderer interface {
	Render(ctx context.Context, a underwriting.AnalysisResult, reportMarkdown string) ([]byte, error)
}

// Config wires the server. Auditor and PDF are optional; the routes that need
// them answer 503 when they are nil.
type Config struct {
	Store    Store
	Profiles *assumptions.Registry
	Auditor  Auditor
	PDF      PDFRenderer
	Issuer   audit.Issuer
}

type Server struct {
	store    Store
	profiles *assumptions.Registry
	auditor  Auditor
	pdf      PDFRenderer
	issuer   audit.Issuer
}

func NewServer(cfg Config) http.Handler {
	s := &Server{
		store:    cfg.Store,
		profiles: cfg.Profiles,
		auditor:  cfg.Auditor,
		pdf:      cfg.PDF,
		issuer:   cfg.Issuer,
	}
	if s.profiles == nil {
		s.profiles = assumptions.Builtin()
	}
	if s.issuer.NewID == nil || s.issuer.Now == nil {
		s.issuer = audit.DefaultIssuer
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/assumptions", s.handleAssumptions)
	mux.HandleFunc("/v1/underwrite", s.handleUnderwrite)
	mux.HandleFunc("/v1/audits", s.handleAudits)
	mux.HandleFunc("/v1/analyses", s.handleListAnalyses)
	mux.HandleFunc("/v1/analyses/", s.handleAnalysis)
	return instrument(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps the mux in an otelhttp server span named after the route
// and logs one line per request.
func instrument(next http.Handler) http.Handler {
	logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("httpapi: %s %s status=%d dur=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
	return otelhttp.NewHandler(logged, "propquant-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeOf(r.URL.Path)
		}),
	)
}

func routeOf(path string) string {
	if rest, ok := strings.CutPrefix(path, "/v1/analyses/"); ok && rest != "" {
		if _, sub, ok := strings.Cut(strings.Trim(rest, "/"), "/"); ok {
			return "/v1/analyses/{id}/" + sub
		}
		return "/v1/analyses/{id}"
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	e := toError(err)
	body := map[string]any{
		"code":      e.Code,
		"message":   e.Message,
		"transient": e.Transient,
	}
	if e.Field != "" {
		body["field"] = e.Field
	}
	if e.Stage != "" {
		body["stage"] = e.Stage
	}
	writeJSON(w, e.Status, map[string]any{"ok": false, "error": body})
}

// decodeBody reads a JSON object, rejecting unknown fields and trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSON(w, r, dst, false)
}

// decodeOptionalBody is decodeBody for routes whose fields are all optional:
// an empty body leaves dst at its zero value.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSON(w, r, dst, true)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return NewValidationJSONError(errors.New("empty body"))
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			err = errors.New("empty body")
		}
		return NewValidationJSONError(err)
	}
	if dec.More() {
		return NewValidationJSONError(errors.New("trailing data after object"))
	}
	return nil
}

func parseInt(value string, def int) (int, bool) {
	if strings.TrimSpace(value) == "" {
		return def, true
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return v, true
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (s *Server) handleAssumptions(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{
		"default":          underwriting.DefaultConfig(),
		"default_profile":  assumptions.DefaultProfile,
		"profiles":         s.profiles.Profiles(),
		"maintenance_tier": underwriting.MaintenanceTiers,
		"floors": map[string]float64{
			"vacancy_min_pct":     underwriting.InstitutionalFloors.VacancyMinPct,
			"vacancy_default_pct": underwriting.InstitutionalFloors.VacancyDefaultPct,
			"closing_costs_pct":   underwriting.InstitutionalFloors.ClosingCostsPct,
		},
	})
}

type underwriteRequest struct {
	Property *underwriting.PropertyData `json:"property"`
	Risks    []underwriting.RiskFactor  `json:"risks"`
	Config   *assumptions.Overrides     `json:"config"`
	Profile  string                     `json:"profile"`
}

func (s *Server) handleUnderwrite(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req underwriteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Property == nil {
		writeError(w, newFieldError("property", "property is required"))
		return
	}
	config, err := s.profiles.Resolve(req.Profile, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	analysis, err := s.issuer.Underwrite(*req.Property, req.Risks, config)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.Save(r.Context(), analysis, req.Profile); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, audit.BuildResponse(analysis, nil))
}

type auditRequest struct {
	URL     string                 `json:"url"`
	Config  *assumptions.Overrides `json:"config"`
	Profile string                 `json:"profile"`
}

func (s *Server) handleAudits(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	if s.auditor == nil {
		writeError(w, newError(CodeUnavailable, "listing audits are not configured: set ANTHROPIC_API_KEY", false))
		return
	}
	var req auditRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, newFieldError("url", "url must be an absolute http(s) URL"))
		return
	}
	config, err := s.profiles.Resolve(req.Profile, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.auditor.Run(r.Context(), audit.Request{URL: req.URL, Config: config, Profile: req.Profile}, func(stage, message string) {
		log.Printf("httpapi: audit url=%s stage=%s %s", req.URL, stage, message)
	})
	if err != nil {
		log.Printf("httpapi: audit url=%s failed stage=%s err=%v", req.URL, audit.StageNameFromError(err), err)
		writeError(w, err)
		return
	}
	if err := s.store.Save(r.Context(), res.Analysis, req.Profile); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, audit.BuildResponse(res.Analysis, &res.Metadata))
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	limit, ok := parseInt(q.Get("limit"), defaultPageSize)
	if !ok || limit < 1 {
		writeError(w, newFieldError("limit", "limit must be a positive integer"))
		return
	}
	if limit > store.MaxListLimit {
		limit = store.MaxListLimit
	}
	offset, ok := parseInt(q.Get("offset"), 0)
	if !ok || offset < 0 {
		writeError(w, newFieldError("offset", "offset must be a non-negative integer"))
		return
	}
	summaries, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"analyses": summaries, "limit": limit, "offset": offset})
}

// handleAnalysis serves /v1/analyses/{id}, /v1/analyses/{id}/report and
// /v1/analyses/{id}/rerun.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/analyses/"), "/")
	id, rest, _ := strings.Cut(path, "/")
	if id == "" || (rest != "" && rest != "report" && rest != "rerun") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	method := http.MethodGet
	if rest == "rerun" {
		method = http.MethodPost
	}
	if !methodOnly(w, r, method) {
		return
	}
	analysis, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	switch rest {
	case "":
		writeJSON(w, 200, analysis)
	case "report":
		s.writeReport(w, r, analysis)
	default:
		s.rerun(w, r, analysis)
	}
}

type rerunRequest struct {
	Config  *assumptions.Overrides `json:"config"`
	Profile string                 `json:"profile"`
}

func (s *Server) rerun(w http.ResponseWriter, r *http.Request, prev underwriting.AnalysisResult) {
	var req rerunRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	config, err := s.profiles.Resolve(req.Profile, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	analysis, err := s.issuer.Rerun(prev, config)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.Save(r.Context(), analysis, req.Profile); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("httpapi: rerun from=%s id=%s profile=%q", prev.ID, analysis.ID, req.Profile)
	writeJSON(w, http.StatusCreated, audit.BuildResponse(analysis, nil))
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, analysis underwriting.AnalysisResult) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	md := audit.BuildMarkdown(analysis)
	switch format {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(200)
		_, _ = io.WriteString(w, md)
	case "html":
		doc, err := render.HTML(analysis, md)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		_, _ = io.WriteString(w, doc)
	case "pdf":
		if s.pdf == nil {
			writeError(w, newError(CodeUnavailable, "pdf rendering is not configured", false))
			return
		}
		pdf, err := s.pdf.Render(r.Context(), analysis, md)
		if err != nil {
			log.Printf("httpapi: render pdf id=%s err=%v", analysis.ID, err)
			writeError(w, newError(CodeInternal, "render pdf: "+err.Error(), true))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="`+analysis.ID+`.pdf"`)
		w.WriteHeader(200)
		_, _ = w.Write(pdf)
	default:
		writeError(w, newFieldError("format", "format must be one of md|html|pdf"))
	}
}
