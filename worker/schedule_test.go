package worker

import (
	"testing"
	"time"

	"dripcrm/models"

	"github.com/stretchr/testify/require"
)

func TestIsDue(t *testing.T) {
	enrolled := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	lastSent := enrolled.Add(24 * time.Hour)

	tests := []struct {
		name     string
		lastSent *time.Time
		step     models.SequenceStep
		now      time.Time
		want     bool
	}{
		{name: "immediate step at enrollment", step: models.SequenceStep{}, now: enrolled, want: true},
		{name: "hours before due", step: models.SequenceStep{DelayHours: 2}, now: enrolled.Add(time.Hour), want: false},
		{name: "exactly due", step: models.SequenceStep{DelayDays: 1, DelayHours: 2}, now: enrolled.Add(26 * time.Hour), want: true},
		{name: "hours beyond a day", step: models.SequenceStep{DelayHours: 36}, now: enrolled.Add(35 * time.Hour), want: false},
		{name: "hours beyond a day due", step: models.SequenceStep{DelayHours: 36}, now: enrolled.Add(36 * time.Hour), want: true},
		{name: "counts from last send", lastSent: &lastSent, step: models.SequenceStep{DelayDays: 3}, now: enrolled.Add(3 * 24 * time.Hour), want: false},
		{name: "after last send delay", lastSent: &lastSent, step: models.SequenceStep{DelayDays: 3}, now: lastSent.Add(3 * 24 * time.Hour), want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsDue(enrolled, tc.lastSent, tc.step, tc.now))
		})
	}
}

func TestDueAt(t *testing.T) {
	enrolled := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	due := DueAt(enrolled, nil, models.SequenceStep{DelayDays: 2, DelayHours: 5})
	require.Equal(t, enrolled.Add(53*time.Hour), due)
}
