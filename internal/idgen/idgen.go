// Package idgen provides the default opaque-id generator for newly
// inserted nodes whose caller does not supply one explicitly.
package idgen

import "github.com/google/uuid"

// Generator produces a fresh opaque scalar id, suitable for the ID
// component of an hdoc.NodeId.
type Generator func() interface{}

// UUID returns a Generator backed by a random (v4) UUID, stringified.
func UUID() Generator {
	return func() interface{} {
		return uuid.NewString()
	}
}
