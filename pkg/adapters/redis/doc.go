// Package redis provides a Redis-backed StateStore and DistributedLocker,
// for deployments where several replicas share project sessions.
package redis
