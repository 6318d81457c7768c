// Package redis hosts the Redis client used by the durable plan cache. It
// mirrors the layering used elsewhere in this module: callers build a Redis
// connection, pass it to New, and receive a typed interface that exposes
// only the operations the plan-cache Store needs.
package redis
