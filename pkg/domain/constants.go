package domain

// Reserved keys of the record wire shape. Every other key is flow data.
const (
	// KeyName identifies the flow that owns a record.
	KeyName = "name"

	// KeyParent holds the handle of the enclosing record of a yielded sub-flow.
	KeyParent = "parent"

	// KeyReturnTo is the location to redirect to once the flow completes.
	KeyReturnTo = "returnTo"

	// KeyPreserved holds the handle of a record that was active before an
	// external round-trip started and must be restored when it completes.
	KeyPreserved = "state"
)

// DefaultHandleParam is the query/body parameter carrying the handle.
const DefaultHandleParam = "state"
