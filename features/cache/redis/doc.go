// Package redis provides a Redis-backed implementation of the runtime plan
// cache. Build the low-level client via features/cache/redis/clients/redis
// and pass it to NewStore so an Orchestrator can share a durable plan cache
// across processes instead of the default in-memory one.
package redis
