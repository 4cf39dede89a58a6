package agentcli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd(t.TempDir())
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{
		"run", "list-devices", "list-receivers", "known-devices", "find",
		"capture-control", "watch-control", "send-control",
	}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("data-dir"))
}

func TestSearchSpec(t *testing.T) {
	spec, err := searchSpec("Launch", false)
	require.NoError(t, err)
	assert.True(t, spec.Match(`[:midi-device "Novation" "Launchkey" "MIDI 1" 0]`))

	spec, err = searchSpec(`"Launch\w+" "MIDI \d"`, true)
	require.NoError(t, err)
	assert.True(t, spec.Match(`[:midi-device "Novation" "Launchkey" "MIDI 1" 0]`))

	_, err = searchSpec("(", true)
	assert.Error(t, err)
}

func TestPrinter(t *testing.T) {
	devices := []deviceView{{Key: `[:midi-device "A" "B" "C" 0]`, Kind: "source", Name: "B", Ordinal: 0}}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	p := printer{}
	require.NoError(t, p.print(cmd, devices))
	assert.Contains(t, out.String(), `"kind": "source"`)

	out.Reset()
	p.yaml = true
	require.NoError(t, p.print(cmd, devices))
	assert.Contains(t, out.String(), "kind: source")
	assert.Contains(t, out.String(), "ordinal: 0")
}
