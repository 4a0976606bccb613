package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "conceptgraph/pkg/errors"
)

const calculusGraph = `scope: calc
concepts:
  - id: functions
    name: Functions
    difficulty: 1
  - id: limits
    name: Limits
    difficulty: 2
    parent: Functions
  - id: derivatives
    name: Derivatives
    difficulty: 3
relationships:
  - source: derivatives
    target: limits
    weight: 0.9
  - source: limits
    target: functions
    weight: 0.8
  - source: functions
    target: derivatives
    weight: 0.4
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BADGER_DIR", "")
	return filepath.Join(t.TempDir(), "db")
}

func TestDecodeGraphFile(t *testing.T) {
	f, err := decodeGraphFile(strings.NewReader(calculusGraph))
	require.NoError(t, err)
	assert.Equal(t, "calc", f.Scope)
	assert.Len(t, f.Concepts, 3)
	assert.Len(t, f.Relationships, 3)

	nodes, err := f.nodes("calc")
	require.NoError(t, err)
	assert.Equal(t, "Functions", nodes[1].ParentName)

	_, err = decodeGraphFile(strings.NewReader("scope: calc\nedges: []\n"))
	assert.Error(t, err, "unknown keys are rejected")

	bad := &graphFile{Concepts: []conceptSpec{{ID: "x", Difficulty: 9}}}
	_, err = bad.nodes("calc")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	fields, ok := appErr.Details["fields"].(map[string][]string)
	require.True(t, ok)
	assert.Contains(t, fields, "difficulty")
}

func TestImportThenOrder(t *testing.T) {
	db := setupEnv(t)
	file := filepath.Join(t.TempDir(), "calc.yaml")
	require.NoError(t, os.WriteFile(file, []byte(calculusGraph), 0o600))

	out, err := run(t, "import", file, "--db", db)
	require.NoError(t, err)

	var summary importSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Concepts)
	assert.Equal(t, 2, summary.Accepted)
	require.Len(t, summary.Rejected, 1)
	assert.Equal(t, "functions", summary.Rejected[0].Source)
	assert.Equal(t, "cycle", summary.Rejected[0].Kind)

	out, err = run(t, "order", "--db", db, "--scope", "calc")
	require.NoError(t, err)

	var plan struct {
		Order []string `json:"order"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, []string{"functions", "limits", "derivatives"}, plan.Order)

	out, err = run(t, "cycles", "--db", db, "-s", "calc")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestCommandsRequireScope(t *testing.T) {
	db := setupEnv(t)
	_, err := run(t, "health", "--db", db)
	assert.Error(t, err)
}

func TestCommandsRequireDatabase(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "health", "--scope", "calc")
	assert.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	db := setupEnv(t)
	file := filepath.Join(t.TempDir(), "calc.yaml")
	require.NoError(t, os.WriteFile(file, []byte(calculusGraph), 0o600))
	metrics := filepath.Join(t.TempDir(), "conceptgraph.prom")

	_, err := run(t, "import", file, "--db", db, "--metrics-file", metrics)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "relationship_validations_total")
}
