package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "critq", cmd.Use)
	assert.Contains(t, cmd.Long, "CRITQ_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"compile", "validate", "entities", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	level := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, level)
	assert.Equal(t, "warn", level.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compile, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	dialect := compile.Flags().Lookup("dialect")
	require.NotNil(t, dialect)
	assert.Equal(t, "d", dialect.Shorthand)
	assert.Equal(t, "postgres", dialect.DefValue)

	for _, name := range []string{"check", "inline-literals", "naming", "schema"} {
		assert.NotNil(t, compile.Flags().Lookup(name), name)
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", librarySchema, "--format", "yaml"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, `invalid format "yaml"`)
}

func TestRootCommand_EnvOverridesDefault(t *testing.T) {
	t.Setenv("CRITQ_DIALECT", "sqlite")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"compile", scenarioPath("title_and_author")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "WHERE book.title LIKE ? || '%' AND book_author.name = ?")
}
