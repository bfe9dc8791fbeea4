package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_NonExistentDir(t *testing.T) {
	_, err := execute(t, NewTestCommand, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, NewTestCommand, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommand_EmptyDirJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand, "json", t.TempDir())
	require.NoError(t, err)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, result.Total)
}

func TestTestCommand_Scenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand, "text", scenariosDir, "--check")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ title_and_author")
	assert.Contains(t, out, ", 0 failed,")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Golden(t *testing.T) {
	out, err := execute(t, NewTestCommand, "json", scenariosDir, "--filter", "title_*", "--golden", goldenDir)
	require.NoError(t, err, out)

	var result TestResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
}

func TestTestCommand_UpdateGolden(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")

	_, err := execute(t, NewTestCommand, "text", scenariosDir, "--filter", "delete_*", "--golden", golden, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(golden, "delete_by_isbn.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"delete_by_isbn"`)

	_, err = execute(t, NewTestCommand, "text", scenariosDir, "--filter", "delete_*", "--golden", golden)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(golden, "delete_by_isbn.golden"), []byte("{}"), 0o644))
	out, err := execute(t, NewTestCommand, "text", scenariosDir, "--filter", "delete_*", "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_UpdateNeedsGolden(t *testing.T) {
	_, err := execute(t, NewTestCommand, "text", scenariosDir, "--update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_Failure(t *testing.T) {
	schemaDir, err := filepath.Abs(librarySchema)
	require.NoError(t, err)

	dir := t.TempDir()
	scenario := `name: wrong_text
description: expected text does not match
schema: ` + schemaDir + `
statement:
  query: Book
  select: [id]
expect:
  sqlite:
    text: SELECT 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_text.yaml"), []byte(scenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	out, err := execute(t, NewTestCommand, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Scenarios, 2)
	assert.Equal(t, "broken.yaml", result.Scenarios[0].Name)
	assert.Contains(t, result.Scenarios[0].Errors[0], "failed to load scenario")
	assert.Contains(t, result.Scenarios[1].Errors[0], "sqlite: text mismatch")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"cart-add.yaml", "cart-remove.yml", "nested/order.yaml", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{"", []string{"cart-add.yaml", "cart-remove.yml", "nested/order.yaml"}},
		{"cart-*", []string{"cart-add.yaml", "cart-remove.yml"}},
		{"order", []string{"nested/order.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			files, err := findScenarioFiles(dir, tt.filter)
			require.NoError(t, err)
			want := make([]string, len(tt.want))
			for i, w := range tt.want {
				want[i] = filepath.Join(dir, w)
			}
			assert.Equal(t, want, files)
		})
	}

	_, err := findScenarioFiles(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}
