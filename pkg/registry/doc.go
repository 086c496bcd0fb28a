// Package registry holds the dispatcher configuration: entry flows and the
// resume chains keyed by (into, from) flow pairs.
package registry
