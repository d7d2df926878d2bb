package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ddsprasad/data-sense-ai/pkg/rules"
	"github.com/ddsprasad/data-sense-ai/pkg/topics"
)

// Knowledge is the parsed set of externally maintained records.
type Knowledge struct {
	Topics       []topics.Entry
	RulesVersion string
	Rules        []rules.Record
	Temporal     rules.TemporalContext

	// Warnings lists recoverable problems, e.g. a missing file.
	Warnings []string
}

type topicsFile struct {
	Topics []topics.Entry `yaml:"topics"`
}

type rulesFile struct {
	Version string         `yaml:"version"`
	Rules   []rules.Record `yaml:"rules"`
}

// LoadKnowledge reads the topic, rule and temporal files named by cfg.
// A missing file is a warning, not an error: topics and rules come back empty
// and the temporal context falls back to rules.DefaultTemporalContext.
// A file that exists but does not parse is an error.
func LoadKnowledge(cfg KnowledgeConfig) (*Knowledge, error) {
	k := &Knowledge{Temporal: rules.DefaultTemporalContext()}

	var tf topicsFile
	found, err := readYAML(cfg.TopicsPath, &tf)
	if err != nil {
		return nil, fmt.Errorf("topics: %w", err)
	}
	if !found {
		k.Warnings = append(k.Warnings, fmt.Sprintf("topics file %q not found, every lookup will use default tables", cfg.TopicsPath))
	}
	k.Topics = tf.Topics

	var rf rulesFile
	found, err = readYAML(cfg.RulesPath, &rf)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if !found {
		k.Warnings = append(k.Warnings, fmt.Sprintf("rules file %q not found, prompts will carry built-in rules only", cfg.RulesPath))
	}
	k.RulesVersion = rf.Version
	k.Rules = rf.Rules
	for i, r := range k.Rules {
		switch r.Kind {
		case "", rules.KindGeneric, rules.KindDateHandling, rules.KindCommonMistake,
			rules.KindBusiness, rules.KindMetric, rules.KindExample:
		default:
			return nil, fmt.Errorf("rules: record %d (%s): unknown kind %q", i, r.Name, r.Kind)
		}
	}

	var tc rules.TemporalContext
	found, err = readYAML(cfg.TemporalPath, &tc)
	if err != nil {
		return nil, fmt.Errorf("temporal: %w", err)
	}
	if found {
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("temporal: %w", err)
		}
		k.Temporal = tc
	} else {
		k.Warnings = append(k.Warnings, fmt.Sprintf("temporal file %q not found, using latest period %d Q%d",
			cfg.TemporalPath, k.Temporal.LatestYear, k.Temporal.LatestQuarter))
	}

	return k, nil
}

// readYAML decodes path into out. It reports false without error when the
// path is empty or the file does not exist.
func readYAML(path string, out any) (bool, error) {
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}
