package arbiter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// Policy controls how agent verdicts fold into a release decision: the
// per-agent weights, the critical set whose reject is final regardless of
// score, and the agents a job waits for.
type Policy struct {
	Weights  map[string]float64 `yaml:"weights"`
	Critical []string           `yaml:"critical"`
	Expected []string           `yaml:"expected"`
}

// DefaultPolicy carries the compiled-in weighting. Security and intent carry
// the most weight and are the critical set.
func DefaultPolicy() Policy {
	return Policy{
		Weights: map[string]float64{
			domain.AgentSecurity:    0.35,
			domain.AgentIntent:      0.25,
			domain.AgentPerformance: 0.20,
			domain.AgentTest:        0.20,
			domain.AgentDiff:        0.10,
		},
		Critical: []string{domain.AgentSecurity, domain.AgentIntent},
		Expected: domain.ExpectedAgents(),
	}
}

// LoadPolicy returns the default policy, overridden by the YAML file at
// path when one is configured. Sections absent from the file keep their
// defaults.
func LoadPolicy(path string) (Policy, error) {
	def := DefaultPolicy()
	if path == "" {
		return def, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("op=arbiter.LoadPolicy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("op=arbiter.LoadPolicy: parse %s: %w", path, err)
	}
	if len(p.Weights) == 0 {
		p.Weights = def.Weights
	}
	if len(p.Critical) == 0 {
		p.Critical = def.Critical
	}
	if len(p.Expected) == 0 {
		p.Expected = def.Expected
	}
	for agent, w := range p.Weights {
		if w < 0 {
			return Policy{}, fmt.Errorf("op=arbiter.LoadPolicy: negative weight %v for %s: %w", w, agent, domain.ErrInvalidArgument)
		}
	}
	return p, nil
}

// verdictScores maps an agent verdict onto its numeric contribution.
var verdictScores = map[domain.Verdict]float64{
	domain.VerdictApprove: 1.0,
	domain.VerdictWarn:    0.5,
	domain.VerdictReject:  0.0,
	domain.VerdictSkip:    0.5,
}

// WeightedScore is sum(verdict_score * confidence * weight) / sum(weight)
// over the received results. Agents that never reported are absent from
// numerator and denominator alike; an all-unknown set scores a neutral 0.5.
func (p Policy) WeightedScore(results []domain.AgentResultEvent) float64 {
	totalScore, totalWeight := 0.0, 0.0
	for _, r := range results {
		weight := p.Weights[r.AgentName]
		score, ok := verdictScores[r.Verdict]
		if !ok {
			score = 0.5
		}
		totalScore += score * r.Confidence * weight
		totalWeight += weight
	}
	if totalWeight <= 0 {
		return 0.5
	}
	return totalScore / totalWeight
}

// FinalVerdict applies the decision rules in order: a reject from a critical
// agent is final, then the score bands take over.
func (p Policy) FinalVerdict(results []domain.AgentResultEvent, score float64) domain.Verdict {
	for _, r := range results {
		if r.Verdict == domain.VerdictReject && p.IsCritical(r.AgentName) {
			return domain.VerdictReject
		}
	}
	switch {
	case score < 0.4:
		return domain.VerdictReject
	case score < 0.7:
		return domain.VerdictWarn
	}
	return domain.VerdictApprove
}

func (p Policy) IsCritical(agent string) bool {
	for _, c := range p.Critical {
		if c == agent {
			return true
		}
	}
	return false
}

// Covers reports whether every expected agent is present in received.
func (p Policy) Covers(received map[string]domain.AgentResultEvent) bool {
	for _, want := range p.Expected {
		if _, ok := received[want]; !ok {
			return false
		}
	}
	return true
}
