// Package assumptions resolves investor assumption profiles into an
// underwriting.AnalysisConfig.
package assumptions

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/joelkehle/propquant/internal/underwriting"
)

const DefaultProfile = "default"

//go:embed profiles.yaml
var builtinProfiles []byte

// Overrides sets individual AnalysisConfig fields. Nil fields keep the
// underlying value. MaintenanceTier, when set, wins over MaintenancePct.
type Overrides struct {
	DownPaymentPct  *float64 `yaml:"down_payment_pct,omitempty" json:"down_payment_pct,omitempty"`
	InterestRate    *float64 `yaml:"interest_rate,omitempty" json:"interest_rate,omitempty"`
	LoanTermYears   *int     `yaml:"loan_term_years,omitempty" json:"loan_term_years,omitempty"`
	MaintenancePct  *float64 `yaml:"maintenance_pct,omitempty" json:"maintenance_pct,omitempty"`
	MaintenanceTier string   `yaml:"maintenance_tier,omitempty" json:"maintenance_tier,omitempty"`
	InsurancePct    *float64 `yaml:"insurance_pct,omitempty" json:"insurance_pct,omitempty"`
	ManagementPct   *float64 `yaml:"management_pct,omitempty" json:"management_pct,omitempty"`
	SelfManaged     *bool    `yaml:"self_managed,omitempty" json:"self_managed,omitempty"`
}

func (o Overrides) apply(c underwriting.AnalysisConfig) (underwriting.AnalysisConfig, error) {
	if o.DownPaymentPct != nil {
		c.DownPaymentPct = *o.DownPaymentPct
	}
	if o.InterestRate != nil {
		c.InterestRate = *o.InterestRate
	}
	if o.LoanTermYears != nil {
		c.LoanTermYears = *o.LoanTermYears
	}
	if o.MaintenancePct != nil {
		c.MaintenancePct = *o.MaintenancePct
	}
	if t := strings.TrimSpace(o.MaintenanceTier); t != "" {
		pct, ok := underwriting.MaintenanceTiers[underwriting.MaintenanceTier(t)]
		if !ok {
			return c, &underwriting.InputError{Field: "maintenance_tier", Reason: fmt.Sprintf("unknown tier %q", t)}
		}
		c.MaintenancePct = pct
	}
	if o.InsurancePct != nil {
		c.InsurancePct = *o.InsurancePct
	}
	if o.ManagementPct != nil {
		c.ManagementPct = *o.ManagementPct
	}
	if o.SelfManaged != nil {
		c.SelfManaged = *o.SelfManaged
	}
	return c, nil
}

type Profile struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Overrides   `yaml:",inline"`
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

type Registry struct {
	profiles map[string]Profile
}

// Builtin returns the embedded profiles.
func Builtin() *Registry {
	r, err := Parse(builtinProfiles)
	if err != nil {
		panic(fmt.Sprintf("assumptions: builtin profiles: %v", err))
	}
	return r
}

// Load reads a YAML profile file and merges it over the builtin profiles.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r := Builtin()
	for name, p := range extra.profiles {
		r.profiles[name] = p
	}
	return r, nil
}

// Parse decodes a profiles document. Every profile must resolve to a valid config.
func Parse(data []byte) (*Registry, error) {
	var f profileFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	r := &Registry{profiles: map[string]Profile{}}
	for i, p := range f.Profiles {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("profiles[%d]: name is required", i)
		}
		if _, dup := r.profiles[p.Name]; dup {
			return nil, fmt.Errorf("profiles[%d]: duplicate name %q", i, p.Name)
		}
		if _, err := p.Config(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		r.profiles[p.Name] = p
	}
	return r, nil
}

// Config is the profile applied over underwriting.DefaultConfig.
func (p Profile) Config() (underwriting.AnalysisConfig, error) {
	c, err := p.Overrides.apply(underwriting.DefaultConfig())
	if err != nil {
		return c, err
	}
	return c, underwriting.ValidateConfig(c)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, n := range r.Names() {
		out = append(out, r.profiles[n])
	}
	return out
}

// Resolve applies defaults, then the named profile, then per-request
// overrides. An empty name selects DefaultProfile.
func (r *Registry) Resolve(name string, overrides *Overrides) (underwriting.AnalysisConfig, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultProfile
	}
	p, ok := r.profiles[name]
	if !ok {
		return underwriting.AnalysisConfig{}, &underwriting.InputError{Field: "profile", Reason: fmt.Sprintf("unknown profile %q", name)}
	}
	c, err := p.Overrides.apply(underwriting.DefaultConfig())
	if err != nil {
		return underwriting.AnalysisConfig{}, err
	}
	if overrides != nil {
		if c, err = overrides.apply(c); err != nil {
			return underwriting.AnalysisConfig{}, err
		}
	}
	if err := underwriting.ValidateConfig(c); err != nil {
		return underwriting.AnalysisConfig{}, err
	}
	return c, nil
}
