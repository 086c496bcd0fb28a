// Package redis provides a Redis-backed StateStore and DistributedLocker.
package redis
