// Package id defines the identifiers of jobgraph entities.
//
// An ID is a TypeID: a UUIDv7 suffix behind a short prefix naming the
// entity, written "job_01h2xcejqtf2nbrexx3vqjhp41". IDs of one kind sort
// by creation time. The zero ID is [Nil] and renders as the empty string,
// which is how stores spell "no parent" or "no follow-on".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the entity kind of an ID.
type Prefix string

const (
	PrefixJob      Prefix = "job"
	PrefixGraph    Prefix = "graph"
	PrefixArtifact Prefix = "art"
	PrefixWorker   Prefix = "wkr"
)

// ID identifies a job, graph, artifact or worker.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero ID.
var Nil ID

// JobID identifies a node of a job graph.
type JobID = ID

// GraphID identifies one submitted graph, usually one sample's run.
type GraphID = ID

// ArtifactID is the global handle of an artifact. It is the only way one
// job refers to another job's data and never encodes a path.
type ArtifactID = ID

// WorkerID identifies the worker pool that ran an attempt.
type WorkerID = ID

// New returns a fresh ID with prefix. An invalid prefix is a programming
// error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

func NewJobID() ID      { return New(PrefixJob) }
func NewGraphID() ID    { return New(PrefixGraph) }
func NewArtifactID() ID { return New(PrefixArtifact) }
func NewWorkerID() ID   { return New(PrefixWorker) }

// Parse decodes any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix decodes s and fails unless it carries want.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %q id, want %q", s, got, want)
	}
	return parsed, nil
}

func ParseJobID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixJob) }
func ParseGraphID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixGraph) }
func ParseArtifactID(s string) (ID, error) { return ParseWithPrefix(s, PrefixArtifact) }
func ParseWorkerID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixWorker) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity kind, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Nil encodes as "".
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "" decodes as Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner. NULL and "" scan as Nil.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
