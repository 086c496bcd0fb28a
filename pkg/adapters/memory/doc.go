// Package memory provides a process-local StateStore.
package memory
