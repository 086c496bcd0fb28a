/*
Package ports defines the driven ports (interfaces) of the flowstate dispatcher.

These interfaces decouple the dispatch logic from persistence and identifier
generation, so stores can be swapped for in-memory, session-backed, distributed
or test doubles without touching the dispatcher.

# Key Interfaces

  - StateStore: load, save, update and destroy state records within a Scope.
  - Scope / Session: the per-client partition a store operates in.
  - HandleGenerator: produces unpredictable handles for new records.
  - DistributedLocker: cross-instance locking used by the locking store middleware.
*/
package ports
