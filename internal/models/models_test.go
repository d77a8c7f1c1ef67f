package models

import (
	"testing"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		score  int
		want   Tier
		wantOK bool
	}{
		{100, TierA, true},
		{70, TierA, true},
		{69, TierB, true},
		{50, TierB, true},
		{49, "", false},
		{0, "", false},
	}

	for _, tt := range tests {
		got, ok := TierFor(tt.score)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("TierFor(%d) = (%q, %v), want (%q, %v)", tt.score, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCandidateValidate(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		wantErr   bool
	}{
		{
			name:      "valid tier A",
			candidate: Candidate{Symbol: "ABCD", Price: 2.1, Score: 100, Tier: TierA},
			wantErr:   false,
		},
		{
			name:      "valid tier B",
			candidate: Candidate{Symbol: "ABCD", Price: 2.1, Score: 55, Tier: TierB},
			wantErr:   false,
		},
		{
			name:      "empty symbol",
			candidate: Candidate{Price: 2.1, Score: 80, Tier: TierA},
			wantErr:   true,
		},
		{
			name:      "score below minimum",
			candidate: Candidate{Symbol: "ABCD", Price: 2.1, Score: 40, Tier: TierB},
			wantErr:   true,
		},
		{
			name:      "tier does not match score",
			candidate: Candidate{Symbol: "ABCD", Price: 2.1, Score: 75, Tier: TierB},
			wantErr:   true,
		},
		{
			name:      "non-positive price",
			candidate: Candidate{Symbol: "ABCD", Score: 75, Tier: TierA},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candidate.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Candidate.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCandlesLen(t *testing.T) {
	var nilCandles *Candles
	if nilCandles.Len() != 0 {
		t.Errorf("nil candles should have length 0")
	}

	c := &Candles{
		Open:   []float64{1, 2, 3},
		High:   []float64{1, 2, 3},
		Low:    []float64{1, 2},
		Close:  []float64{1, 2, 3},
		Volume: []float64{1, 2, 3},
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}
