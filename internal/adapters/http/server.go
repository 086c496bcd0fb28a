package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aretw0/flowstate"
	"github.com/aretw0/flowstate/internal/logging"
	"github.com/aretw0/flowstate/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flow names of the demo application.
const (
	FlowAccount   = "/account"
	FlowLogin     = "/login"
	FlowFederated = "/login/federated"
	FlowCallback  = "/oauth2/redirect"

	// demoCode is the only authorization code the built-in provider issues.
	demoCode = "demo-code"

	sessionUserKey = "user"
)

// Server is a small host application showing flows over cookie sessions.
type Server struct {
	flows    *flowstate.Dispatcher
	sessions *session.Manager
	cookie   session.CookieConfig
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions overrides the session manager and cookie settings.
func WithSessions(mgr *session.Manager, cookie session.CookieConfig) Option {
	return func(s *Server) {
		s.sessions = mgr
		s.cookie = cookie
	}
}

// WithMetrics exposes the gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler registers the demo flows on flows and returns the router.
func NewHandler(flows *flowstate.Dispatcher, opts ...Option) (http.Handler, error) {
	s := &Server{
		flows:    flows,
		sessions: session.NewManager(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	routes, err := s.register()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/info", s.info)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/idp/authorize", s.authorize)

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware(s.cookie))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, FlowAccount, http.StatusFound)
		})
		r.Post("/logout", s.logout)
		for pattern, h := range routes {
			r.Handle(pattern, h)
		}
	})
	return r, nil
}

// register wires the flows:
//
//	/account yields to /login when no user is signed in, and resumes once it
//	completes. /login/federated yields from /login to an external provider
//	whose callback, /oauth2/redirect, resumes /login with the federated user.
func (s *Server) register() (map[string]http.Handler, error) {
	account, err := s.flows.Register(FlowAccount, flowstate.Steps(s.requireUser))
	if err != nil {
		return nil, err
	}
	login, err := s.flows.Register(FlowLogin, []flowstate.Stage{
		flowstate.Step(s.promptLogin).Named("prompt"),
		flowstate.Catch(s.loginFailed),
	})
	if err != nil {
		return nil, err
	}
	federated, err := s.flows.Register(FlowFederated, flowstate.Steps(s.startFederation))
	if err != nil {
		return nil, err
	}
	callback, err := s.flows.Register(FlowCallback, flowstate.Steps(s.exchangeCode))
	if err != nil {
		return nil, err
	}

	if err := s.flows.OnResume(FlowAccount, FlowLogin, flowstate.Step(s.signIn)); err != nil {
		return nil, err
	}
	if err := s.flows.OnResume(FlowLogin, FlowCallback, flowstate.Step(s.acceptFederatedUser)); err != nil {
		return nil, err
	}

	return map[string]http.Handler{
		FlowAccount:   account(http.HandlerFunc(s.showAccount)),
		FlowLogin:     login(nil),
		FlowFederated: federated(nil),
		FlowCallback:  callback(nil),
	}, nil
}

func sessionUser(r *http.Request) string {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return ""
	}
	user, _ := sess.Get(sessionUserKey)
	name, _ := user.(string)
	return name
}

func (s *Server) requireUser(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
	if sessionUser(txn.Request) == "" {
		return flowstate.Yield(FlowLogin)
	}
	return flowstate.Next()
}

func (s *Server) showAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hello, %s!\n", sessionUser(r))
}

var errMissingUser = errors.New("username is required")

func (s *Server) promptLogin(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
	if txn.State.GetString("user") != "" {
		return flowstate.Next()
	}
	if txn.Request.Method != http.MethodPost {
		return flowstate.Respond(renderLogin(http.StatusOK, ""))
	}
	user := txn.Request.PostFormValue("username")
	if user == "" {
		return flowstate.Fail(errMissingUser)
	}
	txn.State.Set("user", user)
	txn.State.Set("method", "password")
	return flowstate.Next()
}

func (s *Server) loginFailed(ctx context.Context, txn *flowstate.Txn, err error) flowstate.Result {
	if errors.Is(err, errMissingUser) {
		return flowstate.Respond(renderLogin(http.StatusUnprocessableEntity, err.Error()))
	}
	return flowstate.Fail(err)
}

func (s *Server) startFederation(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
	callback := url.Values{"redirect_uri": {FlowCallback}}
	return flowstate.Yield("/idp/authorize?"+callback.Encode(),
		flowstate.WithFlow(FlowCallback),
		flowstate.WithReturnTo(FlowLogin),
		flowstate.WithData(map[string]any{"provider": "demo"}),
	)
}

func (s *Server) exchangeCode(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
	if txn.Request.URL.Query().Get("code") != demoCode {
		return flowstate.Fail(errors.New("invalid authorization code"))
	}
	txn.Locals["user"] = "federated-" + txn.State.GetString("provider")
	return flowstate.Next()
}

func (s *Server) acceptFederatedUser(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
	txn.State.Set("user", txn.Locals["user"])
	txn.State.Set("method", "federated")
	return flowstate.Next()
}

func (s *Server) signIn(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
	sess, ok := session.FromContext(txn.Request.Context())
	if !ok {
		return flowstate.Fail(errors.New("no session bound to request"))
	}
	user := txn.YieldState().GetString("user")
	sess.Set(sessionUserKey, user)
	s.logger.InfoContext(ctx, "signed in", "user", user, "method", txn.YieldState().GetString("method"))
	return flowstate.Next()
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		sess.Delete(sessionUserKey)
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize stands in for an external identity provider: it approves every
// request and sends the browser back with a code and the caller's state.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "missing redirect_uri", http.StatusBadRequest)
		return
	}
	back := url.Values{"code": {demoCode}, "state": {q.Get("state")}}
	http.Redirect(w, r, redirectURI+"?"+back.Encode(), http.StatusFound)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"app":     "flowstate-http",
		"version": flowstate.Version,
		"flows":   s.flows.Config().Flows(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="state" value="{{.Handle}}">
  <label>Username <input name="username"></label>
  <button type="submit">Sign in</button>
</form>
<a href="/login/federated?state={{.Handle}}">Sign in with Demo ID</a>
</body>
</html>
`))

func renderLogin(status int, message string) flowstate.Responder {
	return func(w http.ResponseWriter, r *http.Request, handle string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = loginPage.Execute(w, struct {
			Handle string
			Error  string
		}{handle, message})
	}
}
