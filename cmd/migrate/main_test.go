package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand([]string{"up"})
	require.NoError(t, err)
	require.Equal(t, command{name: "up"}, cmd)

	cmd, err = parseCommand([]string{"down"})
	require.NoError(t, err)
	require.Equal(t, command{name: "down", steps: 1}, cmd)

	cmd, err = parseCommand([]string{"down", "3"})
	require.NoError(t, err)
	require.Equal(t, 3, cmd.steps)

	for _, args := range [][]string{nil, {"sideways"}, {"down", "x"}, {"up", "2"}} {
		_, err := parseCommand(args)
		require.Error(t, err, args)
	}
}

func TestRunRequiresDSN(t *testing.T) {
	t.Setenv(dsnEnv, "")
	err := run([]string{"up"})
	require.ErrorContains(t, err, "-database")
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run([]string{"-database", "postgres://localhost/lol", "-quiet", "sideways"})
	require.ErrorContains(t, err, "unknown command")
}
