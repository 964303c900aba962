package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "PACKAGE", "PATH")
	table.AddRow("urth-core", "/urth_components/urth-core")
	table.AddRow("paper-input")

	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "PACKAGE      PATH", strings.TrimRight(lines[0], " "))
	assert.Equal(t, strings.Repeat("─", 11)+"  "+strings.Repeat("─", 26), lines[1])
	assert.Equal(t, "urth-core    /urth_components/urth-core", lines[2])
	assert.Equal(t, "paper-input", lines[3])
	assert.Equal(t, 2, table.Len())
}

func TestTableWithoutHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Address", "localhost:8888")
	kv.AddRow("Codec", "json")
	kv.Render()

	assert.Equal(t, "Address: localhost:8888\nCodec:   json\n", buf.String())
}

func TestFormatError(t *testing.T) {
	out := FormatError(ErrorOptions{
		Context: "install failed",
		Problem: "Failed to install broken.",
		Hints:   []string{"Try again"},
		NoColor: true,
	})
	assert.Equal(t, "✗ INSTALL FAILED: Failed to install broken.\n\n   → Try again\n", out)

	out = FormatError(ErrorOptions{Problem: "plain", NoColor: true})
	assert.Equal(t, "✗ plain\n", out)
}

func TestDomainErrors(t *testing.T) {
	out := ConfigError(errors.New("server.port must be between 1 and 65535"), true)
	assert.Contains(t, out, "CONFIGURATION ERROR: server.port")
	assert.Contains(t, out, "declwidgets init")

	out = InstallError("urth-core", errors.New("exit status 1"), true)
	assert.Contains(t, out, "Failed to install urth-core: exit status 1")
}

func TestSpinnerLifecycle(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "Installing", 10*time.Millisecond, true)

	s.Start()
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Success("Installed")
	s.Stop()

	out := buf.String()
	assert.Contains(t, out, "Installing")
	assert.Contains(t, out, "\r\033[K")
	assert.True(t, strings.HasSuffix(out, "✓ Installed\n"))
}

func TestWithSpinner(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WithSpinner(&buf, "Listing", true, func() error { return nil }))
	assert.Contains(t, buf.String(), "✓ Listing")

	buf.Reset()
	boom := errors.New("boom")
	err := WithSpinner(&buf, "Listing", true, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "✗ Listing failed")
}
