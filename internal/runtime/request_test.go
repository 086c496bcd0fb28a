package runtime

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHandle(t *testing.T) {
	newRequest := func(method, target, contentType, body string) *http.Request {
		var r *http.Request
		if body == "" {
			r = httptest.NewRequest(method, target, nil)
		} else {
			r = httptest.NewRequest(method, target, strings.NewReader(body))
		}
		if contentType != "" {
			r.Header.Set("Content-Type", contentType)
		}
		return r
	}

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"none", newRequest(http.MethodGet, "/login", "", ""), ""},
		{"query", newRequest(http.MethodGet, "/login?state=q1", "", ""), "q1"},
		{"query wins over body", newRequest(http.MethodPost, "/login?state=q1", "application/x-www-form-urlencoded", "state=b1"), "q1"},
		{"form", newRequest(http.MethodPost, "/login", "application/x-www-form-urlencoded", "user=a&state=f1"), "f1"},
		{"json", newRequest(http.MethodPost, "/login", "application/json; charset=utf-8", `{"state":"j1"}`), "j1"},
		{"json without handle", newRequest(http.MethodPost, "/login", "application/json", `{"user":"a"}`), ""},
		{"json array", newRequest(http.MethodPost, "/login", "application/json", `[1,2]`), ""},
		{"json non-string", newRequest(http.MethodPost, "/login", "application/json", `{"state":42}`), ""},
		{"other content type", newRequest(http.MethodPost, "/login", "text/plain", "state=x"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveHandle(tt.req, "state")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveHandle_RestoresJSONBody(t *testing.T) {
	body := `{"state":"j1","password":"hunter2"}`
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	h, err := resolveHandle(r, "state")
	require.NoError(t, err)
	assert.Equal(t, "j1", h)

	rest, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))
}
