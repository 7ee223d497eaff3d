package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(Completed)
	require.NoError(t, err)
	assert.JSONEq(t, `"Completed"`, string(data))

	data, err = json.Marshal(Failed("microphone unplugged"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Error":"microphone unplugged"}`, string(data))

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`{"Error":"boom"}`), &s))
	assert.Equal(t, Failed("boom"), s)
	assert.Equal(t, "Error(boom)", s.String())

	require.NoError(t, json.Unmarshal([]byte(`"Processing"`), &s))
	assert.Equal(t, Processing, s)
}

func TestStatusRejectsUnknown(t *testing.T) {
	var s Status
	assert.Error(t, json.Unmarshal([]byte(`"Paused"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`{"Oops":"x"}`), &s))
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}
