package scan

import (
	"testing"
	"time"
)

func TestDeduplicatorAccept(t *testing.T) {
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	at := func(seconds float64) time.Time {
		return base.Add(time.Duration(seconds * float64(time.Second)))
	}

	type decode struct {
		code string
		at   time.Time
		want bool
	}

	tests := []struct {
		name    string
		decodes []decode
	}{
		{
			name: "Repeat within window is dropped, after window accepted",
			decodes: []decode{
				{"A123", at(0), true},
				{"A123", at(1.5), false},
				{"A123", at(2.1), true},
			},
		},
		{
			name: "Different codes are always accepted",
			decodes: []decode{
				{"A123", at(0), true},
				{"B456", at(0.1), true},
			},
		},
		{
			name: "Exactly at window boundary is accepted",
			decodes: []decode{
				{"A123", at(0), true},
				{"A123", at(2.0), true},
			},
		},
		{
			name: "Just below window boundary is dropped",
			decodes: []decode{
				{"A123", at(0), true},
				{"A123", at(1.999), false},
			},
		},
		{
			name: "Window measured from last acceptance, not last decode",
			decodes: []decode{
				{"A123", at(0), true},
				{"A123", at(1.0), false},
				{"A123", at(1.9), false},
				{"A123", at(2.0), true},
			},
		},
		{
			name: "Switching back to a previous code is accepted",
			decodes: []decode{
				{"A123", at(0), true},
				{"B456", at(0.5), true},
				{"A123", at(1.0), true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeduplicator(2 * time.Second)
			for i, dec := range tt.decodes {
				if got := d.Accept(dec.code, dec.at); got != dec.want {
					t.Errorf("decode #%d Accept(%q) = %v, want %v", i, dec.code, got, dec.want)
				}
			}
		})
	}
}

func TestDeduplicatorReset(t *testing.T) {
	now := time.Now()
	d := NewDeduplicator(2 * time.Second)

	if !d.Accept("A123", now) {
		t.Fatal("first decode should be accepted")
	}
	d.Reset()
	if !d.Accept("A123", now.Add(100*time.Millisecond)) {
		t.Error("decode after Reset should be accepted")
	}
}

func TestNewDeduplicatorDefaultWindow(t *testing.T) {
	d := NewDeduplicator(0)
	if d.Window() != DefaultDedupWindow {
		t.Errorf("Window() = %v, want %v", d.Window(), DefaultDedupWindow)
	}
}
