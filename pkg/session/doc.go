/*
Package session implements the per-client session container used as the
default StateStore scope.

A Session is an in-memory key/value bag identified by an opaque ID. The host
binds one to each request (see NewContext); the default store keeps flow
records inside it. Manager keeps sessions alive across requests for hosts
without their own session layer.
*/
package session
