package invoicing

import "github.com/xraph/invoicing/id"

// ID is the primary identifier type for all Invoicing entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
