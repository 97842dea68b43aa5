package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		wantDbg bool
	}{
		{name: "debug", level: "debug", wantDbg: true},
		{name: "info", level: "info", wantDbg: false},
		{name: "unknown falls back to info", level: "loud", wantDbg: false},
		{name: "empty falls back to info", level: "", wantDbg: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(&buf, tt.level, false)
			log.Debug().Msg("dbg-line")
			log.Info().Msg("info-line")

			out := buf.String()
			assert.Equal(t, tt.wantDbg, strings.Contains(out, "dbg-line"), out)
			assert.Contains(t, out, "info-line")
		})
	}
}
