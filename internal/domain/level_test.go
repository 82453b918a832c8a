package domain

import "testing"

func TestCrisisLevel_Severity_Ordering(t *testing.T) {
	ordered := []CrisisLevel{LevelNone, LevelLow, LevelMedium, LevelHigh, LevelCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Severity() <= ordered[i-1].Severity() {
			t.Errorf("%s should outrank %s", ordered[i], ordered[i-1])
		}
	}
}

func TestCrisisLevel_Severity_Unknown(t *testing.T) {
	if got := CrisisLevel("panic").Severity(); got != -1 {
		t.Errorf("unknown level severity: got %d, want -1", got)
	}
}

func TestParseCrisisLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    CrisisLevel
		wantErr bool
	}{
		{input: "none", want: LevelNone},
		{input: "critical", want: LevelCritical},
		{input: "MEDIUM", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCrisisLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
