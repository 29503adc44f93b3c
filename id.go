package revenue

import "github.com/xraph/revenue/id"

// ID is the primary identifier type for all revenue documents.
type ID = id.ID

// Prefix identifies the document kind encoded in a TypeID.
type Prefix = id.Prefix
