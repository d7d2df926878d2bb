package services

import (
	"context"
	"strings"

	"github.com/ddsprasad/data-sense-ai/pkg/prompts"
)

// PriorContext is what a follow-up question inherits from the last
// succeeded question in a conversation.
type PriorContext struct {
	Question string   `json:"question"`
	SQL      string   `json:"sql"`
	Tables   []string `json:"tables"`
}

// PriorFrom builds the context a follow-up to res would carry.
// Returns nil unless res succeeded.
func PriorFrom(res *Resolution) *PriorContext {
	if res == nil || res.Outcome != OutcomeSucceeded || res.SQL == "" {
		return nil
	}
	return &PriorContext{
		Question: res.Question,
		SQL:      res.SQL,
		Tables:   append([]string(nil), res.Tables...),
	}
}

func (p *PriorContext) usable() bool {
	return p != nil && strings.TrimSpace(p.Question) != "" && strings.TrimSpace(p.SQL) != ""
}

func (p *PriorContext) prompt() *prompts.Prior {
	if !p.usable() {
		return nil
	}
	return &prompts.Prior{Question: p.Question, SQL: p.SQL}
}

// followUpTables is the prior shortlist followed by any tables the topic
// lookup matches for question, without duplicates. Default tables from a
// lookup that matched nothing are not added.
func followUpTables(ctx context.Context, index TableIndex, prior *PriorContext, question string) []string {
	out := make([]string, 0, len(prior.Tables))
	seen := make(map[string]bool)
	add := func(tables []string) {
		for _, t := range tables {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, t)
		}
	}
	add(prior.Tables)
	if index != nil {
		if found := index.Search(ctx, question); !found.Fallback {
			add(found.Tables)
		}
	}
	return out
}
