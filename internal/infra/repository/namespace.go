package repository

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

const keyPrefix = "nostrconnect"

// namespaceKey maps a namespace to a fixed-width key prefix so arbitrary
// namespace strings are safe in every backend's key syntax.
func namespaceKey(namespace string) string {
	return fmt.Sprintf("%s:%016x", keyPrefix, xxh3.HashString(namespace))
}
