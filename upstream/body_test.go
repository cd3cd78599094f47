package upstream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nutrilink/broker/upstream"
)

func TestParseBody(t *testing.T) {
	tests := []struct {
		name string
		data string
		key  string
		want string
	}{
		{"flat json", `{"a":"1"}`, "a", "1"},
		{"nested json flattens", `{"profile":{"auth_token":"t"}}`, "profile.auth_token", "t"},
		{"json number", `{"n":42}`, "n", "42"},
		{"json float keeps precision", `{"n":72.5}`, "n", "72.5"},
		{"json bool", `{"b":true}`, "b", "true"},
		{"form encoded", "oauth_token=rt&oauth_token_secret=rts", "oauth_token_secret", "rts"},
		{"form encoded escapes", "a=x%20y", "a", "x y"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := upstream.ParseBody([]byte(tc.data))
			assert.Equal(t, tc.want, body.Get(tc.key))
		})
	}
}

func TestParseBodyUnparseable(t *testing.T) {
	body := upstream.ParseBody([]byte("<html>not what we asked for</html>"))
	assert.Equal(t, "<html>not what we asked for</html>", body.Raw)
	assert.False(t, body.Has("html"))
}

func TestBodyHas(t *testing.T) {
	body := upstream.ParseBody([]byte(`{"present":"", "nested":{"also":""}}`))
	assert.True(t, body.Has("present"))
	assert.True(t, body.Has("nested.also"))
	assert.False(t, body.Has("absent"))
}
