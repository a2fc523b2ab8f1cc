package domain

import "testing"

func TestResultKinds(t *testing.T) {
	tests := []struct {
		result SimulationResult
		want   ResultKind
	}{
		{&BacktestResult{}, KindBacktest},
		{&ShortTermResult{}, KindShortTerm},
		{&LongTermResult{}, KindLongTerm},
	}
	for _, tt := range tests {
		if got := tt.result.Kind(); got != tt.want {
			t.Errorf("%T.Kind() = %q, want %q", tt.result, got, tt.want)
		}
	}
}

func TestAlertOpValid(t *testing.T) {
	if !AlertOpGTE.Valid() || !AlertOpLTE.Valid() {
		t.Error("expected gte and lte to be valid")
	}
	if AlertOp("eq").Valid() {
		t.Error("AlertOp(\"eq\").Valid() = true, want false")
	}
}

func TestFloat(t *testing.T) {
	p := Float(12.5)
	if p == nil || *p != 12.5 {
		t.Errorf("Float(12.5) = %v, want pointer to 12.5", p)
	}
}
