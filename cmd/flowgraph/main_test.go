package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/flowgraph"
)

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("yaml"))
	assert.Error(t, validateFormat(""))
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    flowgraph.Mode
		wantErr bool
	}{
		{in: "all", want: flowgraph.ModeAll},
		{in: "final", want: flowgraph.ModeFinal},
		{in: "reverse", want: flowgraph.ModeReverse},
		{in: "sideways", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.in)
		if tt.wantErr {
			require.Error(t, err, "mode %q", tt.in)
			continue
		}
		require.NoError(t, err, "mode %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
