package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a participant is not registered.
var ErrNotFound = errors.New("participant not found")

// Capability names the kind of work a participant can perform. The scheduler
// plans in terms of capabilities and resolves them to participants here.
type Capability string

const (
	CapTechnicalAnalysis Capability = "technical_analysis"
	CapNewsResearch      Capability = "news_research"
	CapChartConfig       Capability = "chart_config"
	CapReportWriting     Capability = "report_writing"
	CapIndicatorCoding   Capability = "indicator_coding"
	CapCodeExecution     Capability = "code_execution"
)

// Canonical participant names.
const (
	MarketAnalyst     = "MarketAnalyst"
	NewsResearcher    = "NewsResearcher"
	ChartConfigurator = "ChartConfigurator"
	ReportWriter      = "ReportWriter"
	IndicatorCoder    = "IndicatorCoder"
	CodeExecutor      = "CodeExecutor"
)

// OrchestratorSource is the attributed source of messages synthesized by the
// deliberation loop itself rather than by a participant.
const OrchestratorSource = "Orchestrator"

// Participant describes one reasoning role and its capability set. Immutable
// after startup.
type Participant struct {
	Name           string     `yaml:"name"`
	Description    string     `yaml:"description"`
	Capability     Capability `yaml:"capability"`
	CanPropose     bool       `yaml:"can_propose"`
	CanVote        bool       `yaml:"can_vote"`
	CanExecuteCode bool       `yaml:"can_execute_code"`
}

// Registry is the static participant table.
type Registry struct {
	participants []Participant
	byName       map[string]Participant
}

// defaultParticipants is the built-in council. Artifact-producing roles
// (chart, report, executor) do not vote; they produce output, not positions.
var defaultParticipants = []Participant{
	{
		Name:        MarketAnalyst,
		Description: "Technical analysis: trends, support/resistance, indicators, trade setups",
		Capability:  CapTechnicalAnalysis,
		CanPropose:  true,
		CanVote:     true,
	},
	{
		Name:        NewsResearcher,
		Description: "Fundamental and sentiment analysis from recent news flow",
		Capability:  CapNewsResearch,
		CanPropose:  true,
		CanVote:     true,
	},
	{
		Name:        ChartConfigurator,
		Description: "Produces chart display configuration for the active symbol",
		Capability:  CapChartConfig,
	},
	{
		Name:        ReportWriter,
		Description: "Synthesizes the discussion into the final client-facing report",
		Capability:  CapReportWriting,
	},
	{
		Name:        IndicatorCoder,
		Description: "Writes custom indicator computations when the query needs them",
		Capability:  CapIndicatorCoding,
		CanVote:     true,
	},
	{
		Name:           CodeExecutor,
		Description:    "Executes analysis code in a sandbox and reports the result",
		Capability:     CapCodeExecution,
		CanExecuteCode: true,
	},
}

// New returns a registry with the built-in participant table.
func New() *Registry {
	return fromParticipants(defaultParticipants)
}

// LoadFile builds a registry from a YAML participant file. An empty path
// returns the built-in table.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read participants file: %w", err)
	}
	var parsed struct {
		Participants []Participant `yaml:"participants"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse participants file: %w", err)
	}
	if len(parsed.Participants) == 0 {
		return nil, fmt.Errorf("participants file %s defines no participants", path)
	}
	for _, p := range parsed.Participants {
		if p.Name == "" || p.Capability == "" {
			return nil, fmt.Errorf("participant entries need name and capability")
		}
	}
	return fromParticipants(parsed.Participants), nil
}

func fromParticipants(list []Participant) *Registry {
	r := &Registry{
		participants: make([]Participant, len(list)),
		byName:       make(map[string]Participant, len(list)),
	}
	copy(r.participants, list)
	for _, p := range list {
		r.byName[p.Name] = p
	}
	return r
}

// List returns all participants in registration order.
func (r *Registry) List() []Participant {
	out := make([]Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

// ByName looks up a participant by identity.
func (r *Registry) ByName(name string) (Participant, error) {
	p, ok := r.byName[name]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// ByCapability returns the first participant offering the capability.
func (r *Registry) ByCapability(cap Capability) (Participant, error) {
	for _, p := range r.participants {
		if p.Capability == cap {
			return p, nil
		}
	}
	return Participant{}, fmt.Errorf("%w: capability %s", ErrNotFound, cap)
}

// Voters returns the participants allowed to cast consensus votes.
func (r *Registry) Voters() []Participant {
	var out []Participant
	for _, p := range r.participants {
		if p.CanVote {
			out = append(out, p)
		}
	}
	return out
}
