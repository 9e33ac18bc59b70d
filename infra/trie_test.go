package infra

import (
	"errors"
	"testing"
)

func TestTrieMatch(t *testing.T) {
	trie := NewTrie()
	trie.Parse("/api/user/info", "any")
	trie.Parse("/api/user/users", "user.query")
	trie.Parse("/api/user/:id", "by-id")
	trie.Parse("/api/role/:id/permits", "permits")

	tests := []struct {
		path   string
		want   any
		params map[string]string
	}{
		{"/api/user/info", "any", map[string]string{}},
		{"/api/user/users/", "user.query", map[string]string{}},
		{"/api/user/42", "by-id", map[string]string{"id": "42"}},
		{"/api/role/3/permits", "permits", map[string]string{"id": "3"}},
	}
	for _, tt := range tests {
		got, err := trie.Match(tt.path)
		if err != nil {
			t.Errorf("%s: %v", tt.path, err)
			continue
		}
		if got.Node.Value != tt.want {
			t.Errorf("%s = %v, want %v", tt.path, got.Node.Value, tt.want)
		}
		if len(got.Params) != len(tt.params) || got.Params["id"] != tt.params["id"] {
			t.Errorf("%s params = %v, want %v", tt.path, got.Params, tt.params)
		}
	}

	for _, path := range []string{"/", "/api", "/api/user", "/api/role/3", "/monitor"} {
		if _, err := trie.Match(path); !errors.Is(err, ErrNoRoute) {
			t.Errorf("%s: err = %v, want ErrNoRoute", path, err)
		}
	}
}
