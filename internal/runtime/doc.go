// Package runtime implements the flow dispatcher: handle resolution, the
// stage pipeline, the yield stack and outcome classification.
package runtime
