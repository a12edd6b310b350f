package security

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/qw/assets"
	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/pkg/filesystem"
	"github.com/doeshing/qw/internal/ports"
)

// Guardrail implements the SecurityService port.
type Guardrail struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	re   *regexp.Regexp
	rule DangerPattern
}

// DangerPattern describes a regex-based guardrail rule.
type DangerPattern struct {
	Pattern string `yaml:"pattern"`
	Level   string `yaml:"level"`
	Message string `yaml:"message"`
	Action  string `yaml:"action"`
}

// RulesFile is the YAML schema root.
type RulesFile struct {
	Rules struct {
		DangerPatterns []DangerPattern `yaml:"danger_patterns"`
	} `yaml:"rules"`
}

// NewGuardrail loads rules from path, or the embedded defaults when path is empty or missing.
func NewGuardrail(path string) (*Guardrail, error) {
	rules, err := loadRules(path)
	if err != nil {
		return nil, err
	}

	var compiled []compiledPattern
	for _, pattern := range rules.Rules.DangerPatterns {
		re, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile guardrail pattern %q: %w", pattern.Pattern, err)
		}
		compiled = append(compiled, compiledPattern{re: re, rule: pattern})
	}

	return &Guardrail{patterns: compiled}, nil
}

// Evaluate implements ports.SecurityService.
func (g *Guardrail) Evaluate(command string) (domain.RiskAssessment, error) {
	if g == nil {
		return domain.RiskAssessment{}, errors.New("guardrail nil")
	}
	assessment := domain.RiskAssessment{
		Level:  domain.RiskSafe,
		Action: domain.ActionAllow,
	}
	for _, pattern := range g.patterns {
		if !pattern.re.MatchString(command) {
			continue
		}
		level := parseRiskLevel(pattern.rule.Level)
		if moreSevere(level, assessment.Level) {
			assessment.Level = level
		}
		if action := parseAction(pattern.rule.Action, level); actionRank(action) > actionRank(assessment.Action) {
			assessment.Action = action
		}
		assessment.Reasons = append(assessment.Reasons, pattern.rule.Message)
		assessment.MatchedRules = append(assessment.MatchedRules, pattern.rule.Pattern)
	}
	return assessment, nil
}

func loadRules(path string) (RulesFile, error) {
	var rules RulesFile
	if path != "" {
		data, err := os.ReadFile(filesystem.ExpandPath(path))
		if err == nil {
			if err := yaml.Unmarshal(data, &rules); err != nil {
				return RulesFile{}, fmt.Errorf("parse guardrail rules %s: %w", path, err)
			}
			if len(rules.Rules.DangerPatterns) > 0 {
				return rules, nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return RulesFile{}, err
		}
	}
	if err := yaml.Unmarshal(assets.DefaultGuardrailYAML, &rules); err != nil {
		return RulesFile{}, fmt.Errorf("parse default guardrail rules: %w", err)
	}
	return rules, nil
}

func parseRiskLevel(value string) domain.RiskLevel {
	switch strings.ToLower(value) {
	case "low":
		return domain.RiskLow
	case "medium":
		return domain.RiskMedium
	case "high":
		return domain.RiskHigh
	case "critical":
		return domain.RiskCritical
	default:
		return domain.RiskSafe
	}
}

func parseAction(value string, fallback domain.RiskLevel) domain.GuardrailAction {
	switch strings.ToLower(value) {
	case "allow":
		return domain.ActionAllow
	case "warn":
		return domain.ActionWarn
	case "block":
		return domain.ActionBlock
	default:
		if fallback == domain.RiskSafe {
			return domain.ActionAllow
		}
		return domain.ActionWarn
	}
}

func actionRank(action domain.GuardrailAction) int {
	switch action {
	case domain.ActionBlock:
		return 2
	case domain.ActionWarn:
		return 1
	default:
		return 0
	}
}

func moreSevere(next domain.RiskLevel, current domain.RiskLevel) bool {
	order := map[domain.RiskLevel]int{
		domain.RiskSafe:     0,
		domain.RiskLow:      1,
		domain.RiskMedium:   2,
		domain.RiskHigh:     3,
		domain.RiskCritical: 4,
	}
	return order[next] > order[current]
}

var _ ports.SecurityService = (*Guardrail)(nil)
