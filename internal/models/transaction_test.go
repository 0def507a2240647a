package models

import "testing"

func TestFallbackRef(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"longer than prefix", "TXN0000000000000000000000XYZ", "TXN0000000000000000000000"},
		{"exactly prefix length", "TXN0000000000000000000000", "TXN0000000000000000000000"},
		{"shorter than prefix", "TXN-42", "TXN-42"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Transaction{TransactionID: tt.id}
			if got := tr.FallbackRef(); got != tt.want {
				t.Fatalf("FallbackRef() = %q, want %q", got, tt.want)
			}
		})
	}
}
