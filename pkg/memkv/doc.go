// Package memkv is a small sharded in-memory byte store with per-key TTL.
//
// The servient uses it to cache fetched Thing Descriptions by URI. Expired
// keys are removed lazily on access and by a background expirer that sleeps
// until the nearest deadline.
package memkv
