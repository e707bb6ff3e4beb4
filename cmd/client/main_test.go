package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"
)

func TestStyleFor(t *testing.T) {
	tests := []struct {
		line string
		want color.Style
	}{
		{"[Private] alice: hi", color.New(color.FgMagenta, color.OpBold)},
		{"[Group g1] alice: hi", color.New(color.FgCyan)},
		{"Invalid command.", color.New(color.FgRed)},
		{"Enter username: ", color.New(color.FgYellow)},
		{"alice has joined the chat.", color.New(color.FgYellow)},
		{"bob joined group g1", color.New(color.FgYellow)},
		{"alice: plain broadcast", color.New(color.FgWhite)},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, tt.want, styleFor(tt.line))
		})
	}
}

func TestPrintIncoming(t *testing.T) {
	color.Disable()
	t.Cleanup(func() { color.Enable = true })

	var out bytes.Buffer
	in := strings.NewReader("Enter username: \nWelcome to the chat server!\n")

	require.NoError(t, printIncoming(in, &out))

	// Prompts stay on the input line
	require.Equal(t, "Enter username: Welcome to the chat server!\n", out.String())
}
