package chalk

import "github.com/xraph/chalk/id"

// ID is the identifier type for chalk entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
