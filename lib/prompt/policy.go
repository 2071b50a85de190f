// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// PolicyFile is the JSONC document a PolicyPrompter answers from:
//
//	{
//	    // Answer used for permissions not listed below.
//	    "default": "deny",
//	    "permissions": {
//	        "android.permission.CAMERA": "grant",
//	        "android.permission.POST_NOTIFICATIONS": "dismiss",
//	    },
//	    // Simulated time the user spends looking at the prompt.
//	    "delay": "250ms",
//	}
type PolicyFile struct {
	Default     string            `json:"default"`
	Permissions map[string]string `json:"permissions"`
	Delay       string            `json:"delay"`
}

// PolicyPrompter answers prompts from a fixed policy without any UI.
type PolicyPrompter struct {
	defaultDecision Decision
	decisions       map[string]Decision
	delay           time.Duration
}

// ParsePolicy strips JSONC comments and trailing commas from data and
// builds a PolicyPrompter from the result.
func ParsePolicy(data []byte) (*PolicyPrompter, error) {
	var file PolicyFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("parsing prompt policy: %w", err)
	}

	prompter := &PolicyPrompter{decisions: make(map[string]Decision, len(file.Permissions))}

	var err error
	if prompter.defaultDecision, err = parseDecision(file.Default, Denied); err != nil {
		return nil, fmt.Errorf("prompt policy default: %w", err)
	}
	for permission, answer := range file.Permissions {
		decision, err := parseDecision(answer, prompter.defaultDecision)
		if err != nil {
			return nil, fmt.Errorf("prompt policy for %s: %w", permission, err)
		}
		prompter.decisions[permission] = decision
	}
	if file.Delay != "" {
		if prompter.delay, err = time.ParseDuration(file.Delay); err != nil {
			return nil, fmt.Errorf("prompt policy delay: %w", err)
		}
	}
	return prompter, nil
}

// ReadPolicyFile reads and parses a JSONC policy file.
func ReadPolicyFile(path string) (*PolicyPrompter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	prompter, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prompter, nil
}

// NewFixedPrompter answers every prompt with decision.
func NewFixedPrompter(decision Decision) *PolicyPrompter {
	return &PolicyPrompter{defaultDecision: decision, decisions: map[string]Decision{}}
}

func parseDecision(answer string, fallback Decision) (Decision, error) {
	switch answer {
	case "":
		return fallback, nil
	case "grant", "allow":
		return Granted, nil
	case "deny":
		return Denied, nil
	case "dismiss":
		return Dismissed, nil
	default:
		return Dismissed, fmt.Errorf("unknown answer %q (want grant, deny, or dismiss)", answer)
	}
}

// Prompt implements Prompter. Cancelling ctx during the delay tears the
// prompt down.
func (p *PolicyPrompter) Prompt(ctx context.Context, permission string) (Decision, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Dismissed, ctx.Err()
		}
	}
	if decision, ok := p.decisions[permission]; ok {
		return decision, nil
	}
	return p.defaultDecision, nil
}
