package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDKeepsItsForm(t *testing.T) {
	for _, doc := range []string{`"abc"`, `1714560000000`, `"1714560000000"`} {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(doc), &id), doc)
		b, err := json.Marshal(id)
		require.NoError(t, err)
		assert.Equal(t, doc, string(b))
	}

	var id ID
	require.NoError(t, json.Unmarshal([]byte(`null`), &id))
	assert.True(t, id.IsZero())
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
	assert.Equal(t, `"x"`, mustMarshal(t, NewID("x")))
}

func TestIntAcceptsStrings(t *testing.T) {
	tests := map[string]Int{`5`: 5, `"5"`: 5, `" 12 "`: 12, `""`: 0, `5.0`: 5}
	for doc, want := range tests {
		var got Int
		require.NoError(t, json.Unmarshal([]byte(doc), &got), doc)
		assert.Equal(t, want, got, doc)
	}
	var i Int
	assert.Error(t, json.Unmarshal([]byte(`"five"`), &i))
	assert.Error(t, json.Unmarshal([]byte(`5.5`), &i))
	assert.Equal(t, `7`, mustMarshal(t, Int(7)))
}

func TestBoolAcceptsStrings(t *testing.T) {
	tests := map[string]Bool{`true`: true, `"true"`: true, `"false"`: false, `1`: true, `"0"`: false, `""`: false}
	for doc, want := range tests {
		var got Bool
		require.NoError(t, json.Unmarshal([]byte(doc), &got), doc)
		assert.Equal(t, want, got, doc)
	}
	var b Bool
	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &b))
	assert.Equal(t, `true`, mustMarshal(t, Bool(true)))
}

func TestAmountsAreNumbers(t *testing.T) {
	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t","amount":"212.40"}`), &tx))
	assert.Contains(t, mustMarshal(t, tx), `"amount":212.4`)
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
