// Package cache is the cache store adapter for the content pipeline.
//
// A Backend moves raw bytes to and from a key/value store with expiry. Store
// wraps a Backend with the degrade policy the content pipeline relies on:
// backend faults are logged and reported as misses, and failed writes are
// swallowed. Load and Save add JSON encoding on top.
package cache
