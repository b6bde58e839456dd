// Package kv holds the mutation contract shared by the keyed store adapter
// and the verification services. It exists so services can describe a
// read-modify-write as data and let the store apply it atomically.
package kv

import "time"

// Op selects what Update does with the key after the callback returns.
type Op int

const (
	// OpNone leaves the key untouched.
	OpNone Op = iota
	// OpWrite replaces the value and TTL.
	OpWrite
	// OpDelete removes the key.
	OpDelete
)

// Mutation is the outcome of an UpdateFunc.
type Mutation struct {
	Op    Op
	Value string
	TTL   time.Duration
}

// UpdateFunc receives the current value and its remaining TTL (non-positive
// when the key carries no expiry) and returns the mutation to apply. It may
// be invoked more than once when the optimistic transaction is retried, so it
// must not have side effects beyond its captured outputs.
type UpdateFunc func(value string, ttl time.Duration) (Mutation, error)
