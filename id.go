package jobgraph

import "github.com/xraph/jobgraph/id"

// ID is the primary identifier type for all jobgraph entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
