// Package agent serves the A2A agent card.
package agent

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed agent.json
var agentCardJSON []byte

// AgentCardData is the card served at /.well-known/agent.json. It is set by
// LoadAgentCard.
var AgentCardData []byte

var (
	loadOnce sync.Once
	loadErr  error
)

// LoadAgentCard validates the embedded card and publishes it in AgentCardData.
// When publicURL is set it replaces the card's url so remote callers reach
// this deployment. Only the first call has any effect.
func LoadAgentCard(publicURL string) error {
	loadOnce.Do(func() {
		var card map[string]any
		if err := json.Unmarshal(agentCardJSON, &card); err != nil {
			loadErr = fmt.Errorf("invalid agent card: %w", err)
			return
		}
		for _, field := range []string{"name", "description", "version", "capabilities", "endpoints", "skills"} {
			if _, ok := card[field]; !ok {
				loadErr = fmt.Errorf("agent card is missing %q", field)
				return
			}
		}

		if publicURL != "" {
			card["url"] = strings.TrimRight(publicURL, "/") + "/a2a/insights"
		}
		data, err := json.MarshalIndent(card, "", "  ")
		if err != nil {
			loadErr = fmt.Errorf("failed to encode agent card: %w", err)
			return
		}
		AgentCardData = data
	})
	return loadErr
}
