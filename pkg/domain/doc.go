/*
Package domain contains the core models of the flowstate dispatcher.

It defines the persisted unit (Record), the request-scoped working state (State),
the per-request transaction view handed to handlers (Txn), and the tagged results
that pipeline stages return. This package is kept free of persistence and
transport concerns; adapters live under pkg/adapters.

# Key Entities

  - Record: a state record as stored under an opaque handle. The handle is never
    part of the stored payload.
  - State: the flat, mutable object handlers read and write. Reserved keys are
    "name", "parent", "returnTo" and "state".
  - Txn: the active state plus the yield stack, request locals and the request.
  - Stage / Result: the pipeline contract (continue, terminate, fail).
*/
package domain
