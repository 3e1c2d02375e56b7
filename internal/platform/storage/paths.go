package storage

import (
	"errors"
	"fmt"
	"strings"
)

var errInvalidObject = errors.New("storage: object path is required")

// ObjectPath normalises an image reference stored on a product into an object
// name inside bucket. References may be bare paths, "/"-prefixed paths or
// gs://bucket/path URIs; a gs:// URI for another bucket is rejected.
func ObjectPath(bucket, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "gs://"); ok {
		refBucket, object, found := strings.Cut(rest, "/")
		if !found {
			return "", errInvalidObject
		}
		if bucket != "" && refBucket != bucket {
			return "", fmt.Errorf("storage: object %q belongs to bucket %q", object, refBucket)
		}
		ref = object
	}
	ref = strings.TrimLeft(ref, "/")
	if ref == "" {
		return "", errInvalidObject
	}
	for _, segment := range strings.Split(ref, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("storage: object path %q contains an invalid segment", ref)
		}
	}
	if strings.ContainsAny(ref, "\\\x00") {
		return "", fmt.Errorf("storage: object path %q contains invalid characters", ref)
	}
	return ref, nil
}

// IsAbsoluteURL reports whether ref already points at a public location and
// needs no signing.
func IsAbsoluteURL(ref string) bool {
	ref = strings.TrimSpace(ref)
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}
