package transfer

import (
	"errors"
	"strings"

	"github.com/xraph/jobgraph"
)

// DefaultBaseURL is the object-store endpoint used to build destination
// URLs for key derivation.
const DefaultBaseURL = "https://s3-us-west-2.amazonaws.com/"

var errEmptyBucket = errors.New("transfer: destination has no bucket")

// Destination is a parsed "bucket/prefix/..." address.
type Destination struct {
	Bucket string
	Prefix string
}

// ParseDestination splits s on its first path segment.
func ParseDestination(s string) (Destination, error) {
	s = strings.TrimPrefix(s, "s3://")
	s = strings.Trim(s, "/")
	bucket, prefix, _ := strings.Cut(s, "/")
	if bucket == "" {
		return Destination{}, &jobgraph.ConfigError{Field: "destination", Err: errEmptyBucket}
	}
	return Destination{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

// Key returns the object key of name under the prefix.
func (d Destination) Key(name string) string {
	if d.Prefix == "" {
		return name
	}
	return d.Prefix + "/" + name
}

// URL returns the full object URL of name under baseURL. An empty baseURL
// means DefaultBaseURL.
func (d Destination) URL(baseURL, name string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + d.Bucket + "/" + d.Key(name)
}

// String renders the destination in its input form.
func (d Destination) String() string {
	if d.Prefix == "" {
		return d.Bucket
	}
	return d.Bucket + "/" + d.Prefix
}
