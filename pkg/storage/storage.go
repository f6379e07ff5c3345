// Package storage abstracts retrieval of stored objects such as overlay
// sources. Implementations address objects by bucket and key.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ObjectStore fetches stored objects by bucket and key.
type ObjectStore interface {
	// Get returns the raw bytes of an object. Missing objects are
	// reported with an error matched by IsNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// KeyNotFoundError reports a bucket/key pair with no stored object.
type KeyNotFoundError struct {
	Bucket string
	Key    string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("object %s/%s does not exist", e.Bucket, e.Key)
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	var nf *KeyNotFoundError
	return errors.As(err, &nf)
}
