package messaging

import "testing"

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "+15551234567", false},
		{"555.123.4567", "+15551234567", false},
		{"15551234567", "+15551234567", false},
		{"+44 20 7946 0958", "+442079460958", false},
		{"  +4915112345678 ", "+4915112345678", false},
		{"", "", true},
		{"call me", "", true},
		{"12345", "", true},
		{"+1234567890123456", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
