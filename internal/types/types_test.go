package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMessage_StartNumberForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want StartNumber
	}{
		{name: "string", in: `{"type":"queue:setStart","startNumber":" 50 "}`, want: " 50 "},
		{name: "number", in: `{"type":"queue:setStart","startNumber":12.5}`, want: "12.5"},
		{name: "null", in: `{"type":"queue:setStart","startNumber":null}`, want: ""},
		{name: "absent", in: `{"type":"queue:setStart"}`, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m ClientMessage
			require.NoError(t, json.Unmarshal([]byte(tc.in), &m))
			assert.Equal(t, tc.want, m.StartNumber)
		})
	}
}

func TestClientMessage_RejectsOtherStartNumberTypes(t *testing.T) {
	var m ClientMessage
	assert.Error(t, json.Unmarshal([]byte(`{"type":"queue:setStart","startNumber":true}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"queue:setStart","startNumber":[1]}`), &m))
}
