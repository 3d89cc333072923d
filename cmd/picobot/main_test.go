package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPicobotCommand(t *testing.T) {
	cmd := NewPicobotCommand()
	require.NotNil(t, cmd)

	assert.Equal(t, "picobot", cmd.Use)
	assert.True(t, cmd.HasSubCommands())

	uses := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		uses = append(uses, sub.Use)
	}
	assert.ElementsMatch(t, []string{"run", "config", "version"}, uses)
}
