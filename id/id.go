// Package id defines TypeID-based identifiers for revenue documents.
//
// Every document uses the same ID struct; the prefix names the kind of
// document ("bill_01h455vb4pex5vsknk084sn02q"). IDs are UUIDv7-based, so
// they sort by creation time.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the document kind encoded in a TypeID.
type Prefix string

// Prefix constants for every revenue document kind.
const (
	PrefixBill     Prefix = "bill" // Department or master bill
	PrefixLineItem Prefix = "li"   // Bill line item
	PrefixPayment  Prefix = "pay"  // Payment against a bill
	PrefixAnomaly  Prefix = "anom" // Revenue anomaly
	PrefixCoding   Prefix = "cod"  // Clinical coding record
	PrefixTariff   Prefix = "trf"  // Tariff master entry
)

// ID is the identifier type for all revenue documents.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics on an invalid prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "bill_01h2xcejqtf2nbrexx3vqjhp41".
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

// ParseWithPrefix parses s and requires its prefix to equal expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// ParseOptional is ParseWithPrefix that maps "" to Nil. Stores use it for
// nullable back-references.
func ParseOptional(s string, expected Prefix) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return ParseWithPrefix(s, expected)
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Kind aliases
// ──────────────────────────────────────────────────

// BillID identifies a department or master bill (prefix: "bill").
type BillID = ID

// LineItemID identifies a line item (prefix: "li").
type LineItemID = ID

// PaymentID identifies a payment (prefix: "pay").
type PaymentID = ID

// AnomalyID identifies a revenue anomaly (prefix: "anom").
type AnomalyID = ID

// CodingID identifies a coding record (prefix: "cod").
type CodingID = ID

// TariffID identifies a tariff entry (prefix: "trf").
type TariffID = ID

// ──────────────────────────────────────────────────
// Constructors and parsers
// ──────────────────────────────────────────────────

// NewBillID generates a new bill ID.
func NewBillID() ID { return New(PrefixBill) }

// NewLineItemID generates a new line item ID.
func NewLineItemID() ID { return New(PrefixLineItem) }

// NewPaymentID generates a new payment ID.
func NewPaymentID() ID { return New(PrefixPayment) }

// NewAnomalyID generates a new anomaly ID.
func NewAnomalyID() ID { return New(PrefixAnomaly) }

// NewCodingID generates a new coding record ID.
func NewCodingID() ID { return New(PrefixCoding) }

// NewTariffID generates a new tariff ID.
func NewTariffID() ID { return New(PrefixTariff) }

// ParseBillID parses s and validates the "bill" prefix.
func ParseBillID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBill) }

// ParseLineItemID parses s and validates the "li" prefix.
func ParseLineItemID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLineItem) }

// ParsePaymentID parses s and validates the "pay" prefix.
func ParsePaymentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPayment) }

// ParseAnomalyID parses s and validates the "anom" prefix.
func ParseAnomalyID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAnomaly) }

// ParseCodingID parses s and validates the "cod" prefix.
func ParseCodingID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCoding) }

// ParseTariffID parses s and validates the "trf" prefix.
func ParseTariffID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTariff) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
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

// Value implements driver.Valuer. Nil stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
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
