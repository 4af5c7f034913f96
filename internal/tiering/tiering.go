// Package tiering implements the Tiering Resolver: routing a chat request
// to a model by explicit tier hint, by content-matching rule, or by
// falling back to a default model. Grounded on
// original_source/agent/tiering.py's ModelTiering.
package tiering

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule matches request content against a precompiled regex and names which
// tier to route to on a match. Precompiled at load time per the spec's
// redesign note (the prototype compiles lazily in __post_init__; this
// gateway compiles the whole rule set once in Load).
type Rule struct {
	Pattern string
	RouteTo string
	re      *regexp.Regexp
}

type yamlRule struct {
	Pattern string `yaml:"pattern"`
	RouteTo string `yaml:"route_to"`
}

type yamlTiering struct {
	ClassificationModel string     `yaml:"classification_model"`
	ReasoningModel       string     `yaml:"reasoning_model"`
	DefaultModel         string     `yaml:"default_model"`
	Rules                []yamlRule `yaml:"rules"`
}

type yamlFile struct {
	Tiering yamlTiering `yaml:"tiering"`
}

// Config is the resolved, ready-to-use tiering configuration.
type Config struct {
	ClassificationModel string
	ReasoningModel       string
	DefaultModel         string
	Rules                []Rule
}

// Resolver resolves a model name for an incoming request.
type Resolver struct {
	cfg Config
}

// Load reads tiering configuration from path and precompiles its rules. A
// missing file yields an empty, always-falls-through-to-default Resolver,
// matching the prototype's reload() no-op-on-missing-file behavior.
func Load(path string) (*Resolver, error) {
	r := &Resolver{}
	if err := r.reload(path); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resolver) reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("tiering: read %s: %w", path, err)
	}

	var yf yamlFile
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return fmt.Errorf("tiering: parse %s: %w", path, err)
	}

	cfg := Config{
		ClassificationModel: yf.Tiering.ClassificationModel,
		ReasoningModel:       yf.Tiering.ReasoningModel,
		DefaultModel:         yf.Tiering.DefaultModel,
	}
	for _, rr := range yf.Tiering.Rules {
		routeTo := rr.RouteTo
		if routeTo == "" {
			routeTo = "default_model"
		}
		re, err := regexp.Compile("(?i)" + rr.Pattern)
		if err != nil {
			return fmt.Errorf("tiering: invalid rule pattern %q: %w", rr.Pattern, err)
		}
		cfg.Rules = append(cfg.Rules, Rule{Pattern: rr.Pattern, RouteTo: routeTo, re: re})
	}

	r.cfg = cfg
	return nil
}

// resolveTier maps a tier name/alias to the actual configured model,
// matching _resolve_tier's alias table.
func (r *Resolver) resolveTier(tier string) string {
	switch tier {
	case "classification_model", "classification":
		return r.cfg.ClassificationModel
	case "reasoning_model", "reasoning":
		return r.cfg.ReasoningModel
	case "default_model", "default":
		return r.cfg.DefaultModel
	default:
		return ""
	}
}

// Resolve determines which model to route to, in priority order: explicit
// tier hint, explicit requested model, content rule match, default model.
func (r *Resolver) Resolve(lastUserText, requestedModel, tierHint string) string {
	if tierHint != "" {
		if model := r.resolveTier(tierHint); model != "" {
			return model
		}
	}

	if requestedModel != "" {
		return requestedModel
	}

	if lastUserText != "" {
		for _, rule := range r.cfg.Rules {
			if rule.re.MatchString(lastUserText) {
				if model := r.resolveTier(rule.RouteTo); model != "" {
					return model
				}
			}
		}
	}

	return r.cfg.DefaultModel
}

// Config returns a copy of the resolver's active configuration, e.g. for
// an admin diagnostics endpoint.
func (r *Resolver) Config() Config {
	return r.cfg
}
