package validation

import (
	"testing"

	"github.com/heatonjb/BinReminderApp/internal/model"
)

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{
			name:  "international format",
			phone: "+447700900123",
			valid: true,
		},
		{
			name:  "digits only",
			phone: "07700900123",
			valid: true,
		},
		{
			name:  "plus in the middle",
			phone: "44+7700900123",
			valid: false,
		},
		{
			name:  "contains letters",
			phone: "+44770090a123",
			valid: false,
		},
		{
			name:  "too short",
			phone: "+12345",
			valid: false,
		},
		{
			name:  "too long",
			phone: "+1234567890123456",
			valid: false,
		},
		{
			name:  "empty string",
			phone: "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidPhone(tt.phone)
			if got != tt.valid {
				t.Fatalf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.valid)
			}
		})
	}
}

func TestIsValidWindowHour(t *testing.T) {
	tests := []struct {
		name  string
		kind  model.WindowKind
		hour  int
		valid bool
	}{
		{name: "morning lower bound", kind: model.WindowMorning, hour: 5, valid: true},
		{name: "morning upper bound", kind: model.WindowMorning, hour: 11, valid: true},
		{name: "morning too early", kind: model.WindowMorning, hour: 4, valid: false},
		{name: "morning in evening range", kind: model.WindowMorning, hour: 18, valid: false},
		{name: "evening lower bound", kind: model.WindowEvening, hour: 12, valid: true},
		{name: "evening upper bound", kind: model.WindowEvening, hour: 22, valid: true},
		{name: "evening too late", kind: model.WindowEvening, hour: 23, valid: false},
		{name: "evening in morning range", kind: model.WindowEvening, hour: 8, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidWindowHour(tt.kind, tt.hour)
			if got != tt.valid {
				t.Fatalf("IsValidWindowHour(%s, %d) = %v, want %v", tt.kind, tt.hour, got, tt.valid)
			}
		})
	}
}
