// Package flow loads the step table that drives a conversation.
package flow

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChatLLM marks a step whose replies come from the configured provider.
const ChatLLM = "llm"

type Step struct {
	Message     string            `yaml:"message"`
	Options     []string          `yaml:"options,omitempty"`
	Next        string            `yaml:"next,omitempty"`
	Transitions map[string]string `yaml:"transitions,omitempty"`
	Chat        string            `yaml:"chat,omitempty"`
	Sensitive   bool              `yaml:"sensitive,omitempty"`
	Simulate    bool              `yaml:"simulate,omitempty"`
	Toast       string            `yaml:"toast,omitempty"`
	// Auto moves to Next right after the step message is posted.
	Auto bool `yaml:"auto,omitempty"`
}

// Flow maps step names to steps.
type Flow map[string]Step

func (f Flow) Has(step string) bool {
	_, ok := f[step]
	return ok
}

// Steps returns the step names in sorted order.
func (f Flow) Steps() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Load reads a flow file.
func Load(path string) (Flow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow: %w", err)
	}

	f, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse flow %s: %w", path, err)
	}
	return f, nil
}

func Parse(raw []byte) (Flow, error) {
	var f Flow
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if len(f) == 0 {
		return nil, errors.New("flow has no steps")
	}
	return f, nil
}

// Validate checks that entry exists and every step points at known steps.
func (f Flow) Validate(entry string) error {
	var errs []error

	if !f.Has(entry) {
		errs = append(errs, fmt.Errorf("entry step %q is not defined", entry))
	}

	for _, name := range f.Steps() {
		step := f[name]
		if step.Next != "" && !f.Has(step.Next) {
			errs = append(errs, fmt.Errorf("step %q: next step %q is not defined", name, step.Next))
		}
		if step.Auto && step.Next == "" {
			errs = append(errs, fmt.Errorf("step %q: auto requires next", name))
		}
		if step.Chat != "" && step.Chat != ChatLLM {
			errs = append(errs, fmt.Errorf("step %q: unsupported chat mode %q", name, step.Chat))
		}
		for option, target := range step.Transitions {
			if !f.Has(target) {
				errs = append(errs, fmt.Errorf("step %q: option %q leads to undefined step %q", name, option, target))
			}
		}
	}

	if name, ok := f.autoCycle(); ok {
		errs = append(errs, fmt.Errorf("step %q: auto transitions form a cycle", name))
	}

	return errors.Join(errs...)
}

// Transition returns the step bound to the option matching input.
func (s Step) Transition(input string) (string, bool) {
	input = strings.TrimSpace(input)
	for option, target := range s.Transitions {
		if strings.EqualFold(option, input) {
			return target, true
		}
	}
	return "", false
}

// autoCycle reports a step whose auto transitions lead back to itself.
func (f Flow) autoCycle() (string, bool) {
	for _, name := range f.Steps() {
		seen := map[string]bool{}
		for current := name; f[current].Auto; current = f[current].Next {
			if seen[current] {
				return name, true
			}
			seen[current] = true
		}
	}
	return "", false
}
