package version

import (
	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/manifest"
)

// parseFlatAgentsPin reads the flat "agents:" mapping of a per-project pin
// file and returns the version named for agent, if any.
func parseFlatAgentsPin(data []byte, agent agentkind.ID) (string, bool) {
	m, err := manifest.Parse(data)
	if err != nil {
		return "", false
	}
	ver, ok := m.Agents[string(agent)]
	return ver, ok
}
