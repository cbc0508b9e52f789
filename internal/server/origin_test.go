package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/gochat/internal/testhelpers"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   string
		ok     bool
	}{
		{origin: "http://localhost:8080", want: "http://localhost:8080", ok: true},
		{origin: "HTTPS://Example.COM", want: "https://example.com", ok: true},
		{origin: "https://example.com/path?q=1", want: "https://example.com", ok: true},
		{origin: "not-a-url", ok: false},
		{origin: "http://", ok: false},
		{origin: "://missing-scheme", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.origin)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOriginPolicy(t *testing.T) {
	log := testhelpers.DiscardLogger()

	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("allow list", func(t *testing.T) {
		p := newOriginPolicy([]string{" http://example.com ", "bogus", ""}, log)

		assert.True(t, p.check(request("http://example.com")))
		assert.True(t, p.check(request("HTTP://EXAMPLE.COM")))
		assert.False(t, p.check(request("http://evil.example")))
		assert.False(t, p.check(request("")))
		assert.False(t, p.check(request("bogus")))
		assert.Len(t, p.allowed, 1)
	})

	t.Run("wildcard", func(t *testing.T) {
		p := newOriginPolicy([]string{"*"}, log)

		assert.True(t, p.check(request("http://anything.example")))
		assert.True(t, p.check(request("")))
	})

	t.Run("empty configuration rejects browsers", func(t *testing.T) {
		p := newOriginPolicy(nil, log)

		assert.False(t, p.check(request("http://localhost:8080")))
	})
}
