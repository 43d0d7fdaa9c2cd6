package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.0.0")
	assert.Contains(t, buf.String(), "v1.0.0")
	assert.Contains(t, buf.String(), "\\__,_|_|")
}

func TestRenderer(t *testing.T) {
	render, err := NewRenderer(40)
	require.NoError(t, err)

	out, err := render("**bold** answer")
	require.NoError(t, err)
	assert.Contains(t, out, "answer")
}
