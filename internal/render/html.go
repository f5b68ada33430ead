package render

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/propquant/internal/underwriting"
)

//go:embed report.css
var styleCSS string

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders the markdown report of a into a standalone document.
func HTML(a underwriting.AnalysisResult, reportMarkdown string) (string, error) {
	var content strings.Builder
	if err := markdown.Convert([]byte(reportMarkdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	title := "Underwriting Audit"
	if a.ID != "" {
		title += " " + a.ID
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + styleCSS + "</style></head><body>" +
		"<div class='report-wrap'><div class='report-header'>" +
		"<div class='report-meta'>" + metaHTML(a) + "</div>" +
		"<div class='report-badges'>" + badgeHTML(a.InstitutionalScores) + "</div>" +
		"</div><div class='report-html'>" + applyPrintLayoutHooks(content.String()) + "</div></div>" +
		"</body></html>", nil
}

var (
	reProjectionHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*([0-9]+-Year Projection)\s*</h2>`)
	reSeverityBanner    = regexp.MustCompile(`<blockquote>\s*<p><strong>(CRITICAL|WARNING|INFO)</strong>`)
)

func applyPrintLayoutHooks(contentHTML string) string {
	out := reProjectionHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">$2</h2>`)
	return reSeverityBanner.ReplaceAllStringFunc(out, func(m string) string {
		sev := strings.ToLower(reSeverityBanner.FindStringSubmatch(m)[1])
		return strings.Replace(m, "<blockquote>", `<blockquote data-severity="`+sev+`">`, 1)
	})
}

func metaHTML(a underwriting.AnalysisResult) string {
	var out strings.Builder
	if a.ID != "" {
		out.WriteString("<div><strong>Analysis:</strong> " + html.EscapeString(a.ID) + "</div>")
	}
	loc := a.Property.Location
	where := strings.Trim(strings.Join([]string{loc.City, loc.Country}, ", "), ", ")
	if where != "" {
		out.WriteString("<div><strong>Location:</strong> " + html.EscapeString(where) + "</div>")
	}
	if !a.Timestamp.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(a.Timestamp.UTC().Format("January 2, 2006 at 15:04 MST")) + "</div>")
	}
	return out.String()
}

func badgeHTML(s underwriting.InstitutionalScores) string {
	if s.Tier == "" {
		return ""
	}
	band := underwriting.BandFor(s.FinalScore)
	return fmt.Sprintf("<span class='tier-badge tier-%s'>%d / 100 %s</span>", html.EscapeString(string(s.Tier)), s.FinalScore, html.EscapeString(band.Label))
}

