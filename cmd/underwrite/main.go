// Command underwrite runs the deterministic underwriting core over a saved
// property/risk JSON document without touching the network.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/joelkehle/propquant/internal/assumptions"
	"github.com/joelkehle/propquant/internal/audit"
	"github.com/joelkehle/propquant/internal/render"
	"github.com/joelkehle/propquant/internal/store"
	"github.com/joelkehle/propquant/internal/underwriting"
)

// input mirrors the POST /v1/underwrite body.
type input struct {
	Property *underwriting.PropertyData `json:"property"`
	Risks    []underwriting.RiskFactor  `json:"risks"`
	Config   *assumptions.Overrides     `json:"config"`
	Profile  string                     `json:"profile"`
}

type pdfRenderer interface {
	Render(ctx context.Context, a underwriting.AnalysisResult, reportMarkdown string) ([]byte, error)
}

type env struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
	issuer      audit.Issuer
	pdf         func(chromePath string) pdfRenderer
}

func main() {
	_ = godotenv.Load()
	e := env{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
		issuer:      audit.DefaultIssuer,
		pdf:         func(chromePath string) pdfRenderer { return render.NewPDFRenderer(chromePath) },
	}
	os.Exit(run(context.Background(), os.Args[1:], e))
}

func run(ctx context.Context, args []string, e env) int {
	fs := flag.NewFlagSet("underwrite", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	profile := fs.String("profile", "", "assumption profile (overrides the document's profile)")
	profilesPath := fs.String("profiles", os.Getenv("PROPQUANT_PROFILES"), "YAML assumption profiles merged over the builtins")
	format := fs.String("format", "auto", "output format: auto|md|json|html (auto: md on a terminal, json otherwise)")
	pdfOut := fs.String("pdf", "", "also write a PDF report to this path")
	chrome := fs.String("chrome", "", "Chromium binary used for -pdf (default: autodetect)")
	dbPath := fs.String("db", os.Getenv("PROPQUANT_DB_PATH"), "persist the analysis to this SQLite database")
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "usage: underwrite [flags] <input.json|->\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	outFormat := resolveFormat(*format, e.interactive)
	switch outFormat {
	case "md", "markdown", "json", "html":
	default:
		fmt.Fprintf(e.stderr, "underwrite: unknown format %q (want auto|md|json|html)\n", *format)
		return 2
	}

	in, err := readInput(fs.Arg(0), e.stdin)
	if err != nil {
		fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
		return 1
	}
	if *profile != "" {
		in.Profile = *profile
	}

	profiles := assumptions.Builtin()
	if *profilesPath != "" {
		if profiles, err = assumptions.Load(*profilesPath); err != nil {
			fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
			return 1
		}
	}
	config, err := profiles.Resolve(in.Profile, in.Config)
	if err != nil {
		fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
		return 1
	}
	analysis, err := e.issuer.Underwrite(*in.Property, in.Risks, config)
	if err != nil {
		fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
		return 1
	}

	if *dbPath != "" {
		st, err := store.Open(*dbPath)
		if err != nil {
			fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
			return 1
		}
		err = st.Save(ctx, analysis, in.Profile)
		_ = st.Close()
		if err != nil {
			fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
			return 1
		}
	}

	envelope := audit.BuildResponse(analysis, nil)
	if err := writeOutput(e.stdout, outFormat, analysis, envelope); err != nil {
		fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
		return 1
	}

	if *pdfOut != "" {
		pdf, err := e.pdf(*chrome).Render(ctx, analysis, envelope.ReportMarkdown)
		if err != nil {
			fmt.Fprintf(e.stderr, "underwrite: render pdf: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*pdfOut, pdf, 0o644); err != nil {
			fmt.Fprintf(e.stderr, "underwrite: %v\n", err)
			return 1
		}
		fmt.Fprintf(e.stderr, "wrote %s\n", *pdfOut)
	}
	return 0
}

func readInput(path string, stdin io.Reader) (input, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return input{}, err
		}
		defer f.Close()
		r = f
	}
	var in input
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return input{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if in.Property == nil {
		return input{}, fmt.Errorf("%s: property is required", path)
	}
	return in, nil
}

func resolveFormat(format string, interactive bool) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "auto" {
		return format
	}
	if interactive {
		return "md"
	}
	return "json"
}

func writeOutput(w io.Writer, format string, analysis underwriting.AnalysisResult, envelope audit.ResponseEnvelope) error {
	switch format {
	case "md", "markdown":
		_, err := io.WriteString(w, envelope.ReportMarkdown)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(envelope)
	case "html":
		doc, err := render.HTML(analysis, envelope.ReportMarkdown)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, doc)
		return err
	default:
		return fmt.Errorf("unknown format %q (want auto|md|json|html)", format)
	}
}
