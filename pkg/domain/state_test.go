package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_ReservedAccessors(t *testing.T) {
	st := NewState(map[string]any{"name": "/login", "parent": "P1"})
	assert.Equal(t, "/login", st.Name())
	assert.Equal(t, "P1", st.Parent())
	assert.Empty(t, st.ReturnTo())

	st.SetReturnTo("/dashboard")
	assert.Equal(t, "/dashboard", st.ReturnTo())

	st.SetReturnTo("")
	_, ok := st.Get(KeyReturnTo)
	assert.False(t, ok, "clearing a reserved key removes it")
}

func TestState_MapIsCopy(t *testing.T) {
	st := NewState(map[string]any{"user": map[string]any{"sub": "501"}})
	m := st.Map()
	m["user"].(map[string]any)["sub"] = "changed"

	v, _ := st.Get("user")
	assert.Equal(t, "501", v.(map[string]any)["sub"])
}

func TestState_Decode(t *testing.T) {
	type authz struct {
		Client      string `mapstructure:"client"`
		RedirectURI string `mapstructure:"redirectURI"`
		ReturnTo    string `mapstructure:"returnTo"`
		Attempts    int    `mapstructure:"attempts"`
	}

	st := NewState(map[string]any{
		"client":      "s6BhdRkqt3",
		"redirectURI": "https://client.example.com/cb",
		"returnTo":    "/continue",
		"attempts":    "2",
	})

	var out authz
	require.NoError(t, st.Decode(&out))
	assert.Equal(t, authz{
		Client:      "s6BhdRkqt3",
		RedirectURI: "https://client.example.com/cb",
		ReturnTo:    "/continue",
		Attempts:    2,
	}, out)
}

func TestState_RecordRoundTrip(t *testing.T) {
	rec := &Record{Handle: "H1", Name: "/login", ReturnTo: "/home", Data: map[string]any{"foo": "bar"}}
	st := rec.State()
	st.Set("authN", []any{map[string]any{"method": "password"}})

	back := st.Record("H1")
	assert.Equal(t, "/login", back.Name)
	assert.Equal(t, "/home", back.ReturnTo)
	assert.Equal(t, "bar", back.Data["foo"])
	assert.Contains(t, back.Data, "authN")
	assert.NotContains(t, rec.Data, "authN", "working state must not leak into the source record")
}
