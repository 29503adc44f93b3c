package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/revenue/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"BillID", id.NewBillID, "bill_"},
		{"LineItemID", id.NewLineItemID, "li_"},
		{"PaymentID", id.NewPaymentID, "pay_"},
		{"AnomalyID", id.NewAnomalyID, "anom_"},
		{"CodingID", id.NewCodingID, "cod_"},
		{"TariffID", id.NewTariffID, "trf_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"BillID", id.NewBillID, id.ParseBillID},
		{"LineItemID", id.NewLineItemID, id.ParseLineItemID},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID},
		{"AnomalyID", id.NewAnomalyID, id.ParseAnomalyID},
		{"CodingID", id.NewCodingID, id.ParseCodingID},
		{"TariffID", id.NewTariffID, id.ParseTariffID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossKindRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseBillID rejects anom_", id.NewAnomalyID().String(), id.ParseBillID},
		{"ParseAnomalyID rejects cod_", id.NewCodingID().String(), id.ParseAnomalyID},
		{"ParseCodingID rejects bill_", id.NewBillID().String(), id.ParseCodingID},
		{"ParseTariffID rejects li_", id.NewLineItemID().String(), id.ParseTariffID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-kind parse of %q", tt.input)
			}
		})
	}
}

func TestParseOptional(t *testing.T) {
	got, err := id.ParseOptional("", id.PrefixBill)
	if err != nil || !got.IsNil() {
		t.Fatalf("empty string should give Nil, got %v %v", got, err)
	}

	b := id.NewBillID()
	got, err = id.ParseOptional(b.String(), id.PrefixBill)
	if err != nil || got.String() != b.String() {
		t.Fatalf("got %v %v", got, err)
	}

	if _, err := id.ParseOptional(b.String(), id.PrefixCoding); err == nil {
		t.Error("expected prefix mismatch error")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("Nil.Value() = %v, %v", v, err)
	}
}

func TestScan(t *testing.T) {
	b := id.NewBillID()

	var fromString id.ID
	if err := fromString.Scan(b.String()); err != nil || fromString.String() != b.String() {
		t.Fatalf("scan string: %v", err)
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(b.String())); err != nil || fromBytes.String() != b.String() {
		t.Fatalf("scan bytes: %v", err)
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil || !fromNil.IsNil() {
		t.Fatalf("scan nil: %v", err)
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewCodingID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}
}
