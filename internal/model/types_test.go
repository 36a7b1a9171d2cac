package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestTickCSVLine(t *testing.T) {
	tick := Tick{
		Ask:         2,
		Bid:         1,
		Last:        3,
		Low:         7,
		High:        6,
		Open:        8,
		Volume:      4,
		VolumeQuote: 5,
		Timestamp:   123456789,
	}

	want := "2,1,3,7,6,8,4,5,123456789\n"
	if got := tick.CSVLine(); got != want {
		t.Errorf("CSVLine() = %q, want %q", got, want)
	}
}

func TestTickCSVLineFractional(t *testing.T) {
	tick := Tick{
		Ask:       46842.47,
		Bid:       46840.01,
		Last:      46841.5,
		Timestamp: 1546329600,
	}

	want := "46842.47,46840.01,46841.5,0,0,0,0,0,1546329600\n"
	if got := tick.CSVLine(); got != want {
		t.Errorf("CSVLine() = %q, want %q", got, want)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"QUEUED", StatusQueued, false},
		{"queued", StatusQueued, false},
		{" Processing ", StatusProcessing, false},
		{"complete", StatusComplete, false},
		{"FAILED", StatusFailed, false},
		{"done", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStatus(%q) expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusProcessing, StatusComplete, true},
		{StatusProcessing, StatusFailed, true},
		{StatusQueued, StatusComplete, false},
		{StatusQueued, StatusQueued, false},
		{StatusComplete, StatusProcessing, false},
		{StatusComplete, StatusQueued, false},
		{StatusFailed, StatusComplete, false},
		{StatusProcessing, StatusQueued, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusQueued.Terminal() || StatusProcessing.Terminal() {
		t.Error("QUEUED and PROCESSING must not be terminal")
	}
	if !StatusComplete.Terminal() || !StatusFailed.Terminal() {
		t.Error("COMPLETE and FAILED must be terminal")
	}
}

func TestSignalReferencePrice(t *testing.T) {
	tests := []struct {
		name        string
		predictions []float64
		want        float64
	}{
		{"empty", nil, 0},
		{"short history falls back to last", []float64{10, 20}, 20},
		{"exactly four", []float64{1, 2, 3, 4}, 1},
		{"long history uses fourth from end", []float64{1, 2, 3, 4, 5, 6}, 3},
	}

	for _, tt := range tests {
		s := Signal{UUID: uuid.New(), Predictions: tt.predictions}
		if got := s.ReferencePrice(); got != tt.want {
			t.Errorf("%s: ReferencePrice() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseSide(t *testing.T) {
	if got, err := ParseSide("BUY"); err != nil || got != SideBuy {
		t.Errorf("ParseSide(BUY) = %v, %v", got, err)
	}
	if got, err := ParseSide(" sell "); err != nil || got != SideSell {
		t.Errorf("ParseSide(sell) = %v, %v", got, err)
	}
	if _, err := ParseSide("hold"); err == nil {
		t.Error("ParseSide(hold) expected error")
	}
}
