package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ChunksCaptured.Inc()
	m.Analyses.WithLabelValues("succeeded").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["trascrivi_audio_chunks_captured_total"])
	assert.True(t, names["trascrivi_dispatch_duration_seconds"])
	assert.True(t, names["trascrivi_structure_analyses_total"])
}

func TestNewUnregisteredIsIsolated(t *testing.T) {
	assert.NotPanics(t, func() {
		NewUnregistered()
		NewUnregistered()
	})
}
