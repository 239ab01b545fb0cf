package cmd

import (
	"fmt"
	"strings"

	"chatflow/pkg/config"
	"chatflow/pkg/flow"
)

func loadConfig() (*config.Config, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		return config.LoadFile(path)
	}
	return config.LoadOrDefault()
}

// loadFlow reads the configured flow file, or the builtin demo flow when none
// is configured, and validates it against the entry step.
func loadFlow(path string, entry string) (flow.Flow, string, error) {
	f := flow.Builtin()
	source := "builtin"

	if path = strings.TrimSpace(path); path != "" {
		loaded, err := flow.Load(path)
		if err != nil {
			return nil, "", err
		}
		f, source = loaded, path
	}

	if err := f.Validate(entry); err != nil {
		return nil, "", fmt.Errorf("invalid flow %s: %w", source, err)
	}
	return f, source, nil
}
