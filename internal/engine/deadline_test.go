package engine

import (
	"testing"
	"time"
)

func TestAdjust(t *testing.T) {
	adj := DeadlineAdjuster{}
	tc := testContext(monday08)

	tests := []struct {
		name      string
		hours     float64
		deadline  time.Time
		proposed  time.Time
		score     float64
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "fits before deadline",
			hours:     2,
			deadline:  at(20, 0),
			proposed:  at(10, 0),
			score:     0.5,
			wantStart: at(10, 0),
			wantEnd:   at(12, 0),
		},
		{
			name:      "ends exactly on deadline",
			hours:     2,
			deadline:  at(12, 0),
			proposed:  at(10, 0),
			score:     0.5,
			wantStart: at(10, 0),
			wantEnd:   at(12, 0),
		},
		{
			name:      "pulled to latest start",
			hours:     2,
			deadline:  at(20, 0),
			proposed:  at(19, 0),
			score:     0.5,
			wantStart: at(18, 0),
			wantEnd:   at(20, 0),
		},
		{
			name:      "missed non-critical keeps proposal",
			hours:     5,
			deadline:  at(10, 0),
			proposed:  at(10, 0),
			score:     0.5,
			wantStart: at(10, 0),
			wantEnd:   at(15, 0),
		},
		{
			name:      "missed critical starts now",
			hours:     5,
			deadline:  at(10, 0),
			proposed:  at(10, 0),
			score:     0.95,
			wantStart: at(8, 0),
			wantEnd:   at(13, 0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask("a", tt.hours, tt.deadline, 3)
			got := adj.Adjust(task, tt.proposed, tc, tt.score)
			if !got.Start.Equal(tt.wantStart) || !got.End.Equal(tt.wantEnd) {
				t.Errorf("Adjust = [%v, %v), want [%v, %v)", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
			if got.Start.Before(tc.Now) {
				t.Errorf("start %v before now", got.Start)
			}
			if got.Duration() != task.Duration() {
				t.Errorf("Expected duration %v, got %v", task.Duration(), got.Duration())
			}
		})
	}
}
