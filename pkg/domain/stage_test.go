package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYield_Defaults(t *testing.T) {
	res := Yield("/login?prompt=consent")
	assert.Equal(t, ResultYield, res.Kind)
	assert.Equal(t, "/login", res.Yield.Flow)
	assert.Equal(t, "/login?prompt=consent", res.Yield.Location)
	assert.Empty(t, res.Yield.ReturnTo)
}

func TestYield_Options(t *testing.T) {
	data := map[string]any{"provider": "https://id.example.com"}
	res := Yield("/oauth2/start", WithFlow("federate"), WithReturnTo("/account"), WithData(data))

	assert.Equal(t, "federate", res.Yield.Flow)
	assert.Equal(t, "/account", res.Yield.ReturnTo)
	assert.Equal(t, data, res.Yield.Data)

	data["provider"] = "mutated"
	assert.Equal(t, "https://id.example.com", res.Yield.Data["provider"])
}

func TestFail_NilError(t *testing.T) {
	res := Fail(nil)
	assert.Equal(t, ResultFail, res.Kind)
	assert.Error(t, res.Err)
}

func TestResultKind_String(t *testing.T) {
	assert.Equal(t, "respond", ResultRespond.String())
	assert.Equal(t, "unknown", ResultKind(42).String())
}
