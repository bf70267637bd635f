package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: titles
description: Project titles
query:
  from: Book
  ops:
    - select: {field: Title}
assertions:
  - type: template
    dialect: postgres
    expect: 'SELECT "Title" FROM "Book"'
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "titles", scenario.Name)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, "postgres", scenario.Assertions[0].dialect())
	assert.False(t, scenario.executes())
}

func TestLoadScenario_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertion: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: d\nquery: {from: Book}\nassertions: [{type: error, kind: X}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\nquery: {from: Book}\nassertions: [{type: error, kind: X}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing query",
			content: "name: x\ndescription: d\nassertions: [{type: error, kind: X}]\n",
			wantErr: "query is required",
		},
		{
			name:    "no assertions",
			content: "name: x\ndescription: d\nquery: {from: Book}\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "missing setup script",
			content: "name: x\ndescription: d\nsetup: [nope.sql]\nquery: {from: Book}\nassertions: [{type: error, kind: X}]\n",
			wantErr: "setup script not found",
		},
		{
			name:    "unknown assertion type",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertions: [{type: trace}]\n",
			wantErr: `unknown assertion type "trace"`,
		},
		{
			name:    "unknown dialect",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertions: [{type: template, dialect: db2, expect: x}]\n",
			wantErr: "unknown dialect",
		},
		{
			name:    "template without expect",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertions: [{type: template}]\n",
			wantErr: "expect is required",
		},
		{
			name:    "cacheable without value",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertions: [{type: cacheable}]\n",
			wantErr: "cacheable is required",
		},
		{
			name:    "result without rows",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertions: [{type: result}]\n",
			wantErr: "rows is required",
		},
		{
			name:    "negative count",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertions: [{type: affected, count: -1}]\n",
			wantErr: "non-negative count",
		},
		{
			name:    "result on another dialect",
			content: "name: x\ndescription: d\nquery: {from: Book}\nassertions: [{type: result, dialect: mysql, rows: []}]\n",
			wantErr: "run on sqlite only",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
