package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// smallScenarioYAML serves one contact every time unit from t=1 to t=5 with a
// single agent, constant service 1.5 and constant patience 1.5, then drains.
// Four contacts are served and the last one abandons.
const smallScenarioYAML = `name: small
horizon: 5
seed: 1
drain: true
service_level: 1
types:
  - name: calls
    arrival: {process: constant, rate: 1}
    service: {type: constant, mean: 1.5}
    patience: {type: constant, mean: 1.5}
groups:
  - name: agents
    agents: 1
router:
  name: single-fifo
  table:
    type_to_group: [[0]]
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
