/*
Package observability binds dispatcher lifecycle hooks to Prometheus
collectors and structured logs.
*/
package observability
