package revenue

import (
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// DocType is re-exported from the sequence package.
type DocType = sequence.DocType

// Re-export Money constructors
var (
	INR        = types.INR
	USD        = types.USD
	EUR        = types.EUR
	GBP        = types.GBP
	Zero       = types.Zero
	Sum        = types.Sum
	ParseMajor = types.ParseMajor
)

// Re-export document types
const (
	DocBill       = sequence.DocBill
	DocMasterBill = sequence.DocMasterBill
	DocReceipt    = sequence.DocReceipt
	DocAnomaly    = sequence.DocAnomaly
	DocCoding     = sequence.DocCoding
	DocClaim      = sequence.DocClaim
)
