package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootShowsHelpWithoutSubcommand(t *testing.T) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(nil)

	require.NoError(t, root.Execute())
	out := buf.String()
	assert.Contains(t, out, "Usage:")
	for _, name := range []string{"sweep", "reset-counters", "migrate", "seed-roles"} {
		assert.Contains(t, out, name)
	}
}

func TestSweepRejectsMalformedNowBeforeConnecting(t *testing.T) {
	root := newRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"sweep", "--now", "tomorrow"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC3339")
}

func TestParseNow(t *testing.T) {
	fallback := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	got, err := parseNow("  ", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	got, err = parseNow("2024-06-11T09:00:00-04:00", fallback)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 11, 13, 0, 0, 0, time.UTC)))
}
