/*
Package flowstate keeps the state of multi-request HTTP flows on the server
and correlates it across redirects with an opaque handle.

A flow is a chain of stages mounted as net/http middleware. Each request that
enters a flow resolves its handle from the "state" parameter (query string,
form or JSON body), loads the record it names, runs the stages and then
classifies the outcome: the record is created, updated, destroyed or handed
on, and the response redirects with the right handle appended. Flows may
yield to a sub-flow; when the sub-flow completes, its record is consumed and
the parent flow resumes where it left off.

# Concept

Records are plain flat objects. Four keys are reserved:

  - name: the flow that owns the record.
  - parent: the handle of the record a sub-flow will resume.
  - returnTo: where to redirect once the flow completes.
  - state: a record preserved across an external round-trip.

Handles never appear inside the payload; they are store keys and the only
token exposed to clients.

# Usage

	mgr := session.NewManager()
	fs := flowstate.New()

	login := fs.Flow("/login", flowstate.Steps(
		func(ctx context.Context, txn *flowstate.Txn) flowstate.Result {
			if txn.Request.Method == http.MethodGet {
				return flowstate.Respond(renderLoginForm)
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
	fs.OnResume("/account", "/login", flowstate.Step(copyUser))

	r := chi.NewRouter()
	r.Use(mgr.Middleware(session.CookieConfig{}))
	r.Handle("/login", login(nil))
	r.With(account).Get("/account", showAccount)

# Stores

The default store keeps records inside the session bound to each request.
pkg/adapters provides memory, Redis and bbolt stores, and
pkg/persistence/middleware adds encryption, PII masking, locking and logging
around any of them.
*/
package flowstate
