package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieDomainForHost(t *testing.T) {
	cases := []struct {
		host      string
		canonical string
		want      string
	}{
		{"quillbooks.example", "quillbooks.example", ".quillbooks.example"},
		{"www.quillbooks.example", "quillbooks.example", ".quillbooks.example"},
		{"quillbooks.example:443", "quillbooks.example", ".quillbooks.example"},
		{"WWW.Quillbooks.Example", "quillbooks.example", ".quillbooks.example"},
		{"other.example", "quillbooks.example", ""},
		{"evil.quillbooks.example", "quillbooks.example", ""},
		{"localhost", "quillbooks.example", ""},
		{"localhost:8080", "quillbooks.example", ""},
		{"app.localhost", "quillbooks.example", ""},
		{"127.0.0.1:8080", "quillbooks.example", ""},
		{"[::1]:8080", "quillbooks.example", ""},
		{"quillbooks.example", "", ""},
	}
	for _, tc := range cases {
		got := cookieDomainForHost(tc.host, tc.canonical)
		assert.Equal(t, tc.want, got, "host %q canonical %q", tc.host, tc.canonical)
	}
}

func TestOptionalStringThreeWay(t *testing.T) {
	type payload struct {
		Partition OptionalString `json:"partition"`
	}

	var absent payload
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	assert.False(t, absent.Partition.Present)

	var null payload
	require.NoError(t, json.Unmarshal([]byte(`{"partition":null}`), &null))
	assert.True(t, null.Partition.Present)
	assert.Nil(t, null.Partition.Value)

	var set payload
	require.NoError(t, json.Unmarshal([]byte(`{"partition":"part_1"}`), &set))
	assert.True(t, set.Partition.Present)
	require.NotNil(t, set.Partition.Value)
	assert.Equal(t, "part_1", *set.Partition.Value)

	var empty payload
	require.NoError(t, json.Unmarshal([]byte(`{"partition":""}`), &empty))
	assert.True(t, empty.Partition.Present)
	require.NotNil(t, empty.Partition.Value)
	assert.Empty(t, *empty.Partition.Value)

	var bad payload
	assert.Error(t, json.Unmarshal([]byte(`{"partition":7}`), &bad))
}

func TestMutatingMethod(t *testing.T) {
	assert.False(t, mutatingMethod(http.MethodGet))
	assert.False(t, mutatingMethod(http.MethodHead))
	assert.True(t, mutatingMethod(http.MethodPost))
	assert.True(t, mutatingMethod(http.MethodPut))
	assert.True(t, mutatingMethod(http.MethodPatch))
	assert.True(t, mutatingMethod(http.MethodDelete))
}
