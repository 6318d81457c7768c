// Package mongo provides a MongoDB-backed implementation of the runtime plan
// cache. Build the low-level client via features/cache/mongo/clients/mongo and
// pass it to NewStore so an Orchestrator can share a durable plan cache across
// processes instead of the default in-memory one.
package mongo
