package flowstate_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aretw0/flowstate"
	"github.com/aretw0/flowstate/pkg/adapters/memory"
	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/aretw0/flowstate/pkg/persistence/middleware"
	"github.com/aretw0/flowstate/pkg/ports"
	"github.com/aretw0/flowstate/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLoginApp mounts an account page that yields to a login flow.
func newLoginApp(t *testing.T, fs *flowstate.Dispatcher) http.Handler {
	t.Helper()
	login := fs.Flow("/login", flowstate.Steps(
		func(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
			if txn.Request.Method == http.MethodGet {
				return flowstate.Respond(func(w http.ResponseWriter, r *http.Request, handle string) {
					fmt.Fprintf(w, "login:%s", handle)
				})
			}
			txn.State.Set("user", txn.Request.PostFormValue("user"))
			return flowstate.Next()
		},
	))
	account := fs.Flow("/account", flowstate.Steps(
		func(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
			if txn.State.GetString("user") == "" {
				return flowstate.Yield("/login")
			}
			return flowstate.Next()
		},
	))
	require.NoError(t, fs.OnResume("/account", "/login", flowstate.Step(
		func(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
			txn.State.Set("user", txn.YieldState().GetString("user"))
			return flowstate.Next()
		},
	)))

	mux := http.NewServeMux()
	mux.Handle("/login", login(nil))
	mux.Handle("/account", account(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txn, ok := flowstate.FromContext(r.Context())
		require.True(t, ok)
		fmt.Fprintf(w, "welcome %s", txn.State.GetString("user"))
	})))
	return session.NewManager().Middleware(session.CookieConfig{})(mux)
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestFacade_SessionBackedYieldAndResume(t *testing.T) {
	fs := flowstate.New()
	srv := httptest.NewServer(newLoginApp(t, fs))
	defer srv.Close()
	client := newClient(t)

	// Following redirects lands on the login form with the child handle.
	resp, err := client.Get(srv.URL + "/account")
	require.NoError(t, err)
	page := body(t, resp)
	require.True(t, strings.HasPrefix(page, "login:"), page)
	child := strings.TrimPrefix(page, "login:")
	require.NotEmpty(t, child)
	assert.Equal(t, child, resp.Request.URL.Query().Get("state"))

	resp, err = client.PostForm(srv.URL+"/login", url.Values{"state": {child}, "user": {"alice"}})
	require.NoError(t, err)
	assert.Equal(t, "welcome alice", body(t, resp))
	assert.Equal(t, "/account", resp.Request.URL.Path)
}

func TestFacade_SessionsAreIsolated(t *testing.T) {
	fs := flowstate.New()
	srv := httptest.NewServer(newLoginApp(t, fs))
	defer srv.Close()

	resp, err := newClient(t).Get(srv.URL + "/account")
	require.NoError(t, err)
	child := strings.TrimPrefix(body(t, resp), "login:")

	// Another browser cannot complete a flow it did not start.
	resp, err = newClient(t).PostForm(srv.URL+"/login", url.Values{"state": {child}, "user": {"mallory"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFacade_WithStoreAndMiddleware(t *testing.T) {
	store := memory.NewStore()
	var ops []string
	spy := func(next ports.StateStore) ports.StateStore {
		return &countingStore{StateStore: next, ops: &ops}
	}
	fs := flowstate.New(
		flowstate.WithStore(store),
		flowstate.WithStoreMiddleware(spy, middleware.NewPIIMiddleware([]string{"password"})),
		flowstate.WithScopeResolver(func(r *http.Request) ports.Scope { return ports.ScopeID("tenant-a") }),
	)

	handler := fs.Handler("/signup", flowstate.Step(func(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
		txn.State.Set("password", "hunter2")
		txn.State.Set("email", "a@example.com")
		return flowstate.Redirect("/verify")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/signup", nil))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	h := loc.Query().Get("state")

	rec, err := store.Load(context.Background(), ports.ScopeID("tenant-a"), h)
	require.NoError(t, err)
	assert.Equal(t, "***", rec.Data["password"])
	assert.Equal(t, "a@example.com", rec.Data["email"])
	assert.Equal(t, []string{"save"}, ops)
}

func TestFacade_HandleParamAndExternal(t *testing.T) {
	store := memory.NewStore()
	fs := flowstate.New(
		flowstate.WithStore(store),
		flowstate.WithHandleParam("flow"),
		flowstate.WithScopeResolver(func(r *http.Request) ports.Scope { return ports.ScopeID("") }),
	)

	var clientState string
	handler := fs.Flow("/authorize", flowstate.Steps(func(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
		clientState = txn.Request.URL.Query().Get("flow")
		txn.State.Set("client", "s6BhdRkqt3")
		return flowstate.Redirect("/consent")
	}), flowstate.External())(nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorize?flow=xyz", nil))

	assert.Equal(t, "xyz", clientState)
	loc := w.Header().Get("Location")
	assert.True(t, strings.HasPrefix(loc, "/consent?flow="), loc)
	assert.NotContains(t, loc, "xyz")
}

func TestFacade_DuplicateFlowPanics(t *testing.T) {
	fs := flowstate.New()
	fs.Flow("/login", []flowstate.Stage{noop})
	assert.Panics(t, func() { fs.Flow("/login", []flowstate.Stage{noop}) })

	_, err := fs.Register("/signup", nil)
	assert.Error(t, err, "a flow needs at least one stage")
}

func TestFacade_ErrorHandler(t *testing.T) {
	var got error
	fs := flowstate.New(
		flowstate.WithStore(memory.NewStore()),
		flowstate.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		}),
	)
	handler := fs.Handler("/login", noop)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login?state=stale", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.ErrorIs(t, got, flowstate.ErrNotFound)
}

func TestFacade_Hooks(t *testing.T) {
	var outcomes []domain.Outcome
	fs := flowstate.New(
		flowstate.WithStore(memory.NewStore()),
		flowstate.WithHooks(flowstate.Hooks{
			OnOutcome: func(ctx context.Context, e *domain.OutcomeEvent) {
				outcomes = append(outcomes, e.Outcome)
			},
		}),
	)
	handler := fs.Handler("/ping", noop)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, []domain.Outcome{domain.OutcomeComplete}, outcomes)
}

var noop = flowstate.Step(func(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
	return flowstate.Next()
})

type countingStore struct {
	ports.StateStore
	ops *[]string
}

func (s *countingStore) Save(ctx context.Context, scope ports.Scope, rec *domain.Record) (string, error) {
	*s.ops = append(*s.ops, "save")
	return s.StateStore.Save(ctx, scope, rec)
}
