package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookLevelEntryJSON(t *testing.T) {
	e := BookLevelEntry{Price: 295.96, Size: 4.39, OrderID: "da863862-25f4-4868-ac41-005d11ab0a5f"}
	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, `[295.96,4.39,"da863862-25f4-4868-ac41-005d11ab0a5f"]`, string(out))

	var back BookLevelEntry
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, e, back)
}

func TestBookLevelEntryUnmarshalErrors(t *testing.T) {
	var e BookLevelEntry
	assert.Error(t, e.UnmarshalJSON([]byte(`{"price":1}`)))
	assert.Error(t, e.UnmarshalJSON([]byte(`["abc",1,"id"]`)))
	assert.Error(t, e.UnmarshalJSON([]byte(`[1,"abc","id"]`)))
	assert.Error(t, e.UnmarshalJSON([]byte(`[1,2,3]`)))
}

// Downstream replay tooling depends on the exact field order.
func TestBookSnapshotFieldOrder(t *testing.T) {
	s := BookSnapshot{
		Asks:       []BookLevelEntry{{Price: 101.5, Size: 2, OrderID: "a1"}},
		Bids:       []BookLevelEntry{{Price: 100, Size: 1, OrderID: "b1"}},
		Instrument: "BTC-USD",
		Sequence:   42,
		Time:       1700000000000,
	}
	out, err := json.Marshal(&s)
	require.NoError(t, err)
	assert.Equal(t,
		`{"asks":[[101.5,2,"a1"]],"bids":[[100,1,"b1"]],"instrument":"BTC-USD","sequence":42,"time":1700000000000}`,
		string(out))
}

func TestBookSnapshotMarshalJSONBuffer(t *testing.T) {
	s := BookSnapshot{Instrument: "ETH<USD>", Sequence: 7}
	plain, err := json.Marshal(&s)
	require.NoError(t, err)

	buffered, err := s.MarshalJSONBuffer()
	require.NoError(t, err)
	// Encoder output carries a trailing newline and no HTML escaping.
	assert.JSONEq(t, string(plain), string(buffered))
	assert.Contains(t, string(buffered), "ETH<USD>")

	// Pool reuse must not corrupt earlier results.
	again, err := s.MarshalJSONBuffer()
	require.NoError(t, err)
	assert.Equal(t, buffered, again)
}
