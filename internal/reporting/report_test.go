package reporting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestRunReporter_Generate(t *testing.T) {
	now := time.Date(2024, 10, 19, 12, 0, 0, 0, time.UTC)
	reporter := NewRunReporter("status")

	tests := []struct {
		name     string
		steps    []StepRecord
		expected *RunReport
	}{
		{
			name:  "NoSteps",
			steps: nil,
			expected: &RunReport{
				OrderID:        "order-1",
				StepUsage:      map[string]int{},
				ErrorBreakdown: map[string]int{},
			},
		},
		{
			name: "FullRun",
			steps: []StepRecord{
				{Timestamp: now, Step: "reserve", OK: true, ReturnCode: "0000", Duration: 100 * time.Millisecond},
				{Timestamp: now.Add(time.Second), Step: "status", OK: false, ReturnCode: "0000"},
				{Timestamp: now.Add(time.Second), Step: "details", OK: true, ReturnCode: "0000"},
				{Timestamp: now.Add(11 * time.Second), Step: "status", OK: true, ReturnCode: "0110"},
				{Timestamp: now.Add(12 * time.Second), Step: "confirm", OK: true, ReturnCode: "0000"},
				{Timestamp: now.Add(13 * time.Second), Step: "pay", OK: false, ReturnCode: "1150"},
				{Timestamp: now.Add(14 * time.Second), Step: "expire", OK: false, Duration: time.Second},
			},
			expected: &RunReport{
				OrderID:            "order-1",
				TotalSteps:         7,
				SuccessfulSteps:    4,
				FailedSteps:        3,
				PollAttempts:       2,
				StepUsage:          map[string]int{"reserve": 1, "status": 2, "details": 1, "confirm": 1, "pay": 1, "expire": 1},
				ErrorBreakdown:     map[string]int{"0000": 1, "1150": 1, "transport": 1},
				DateFrom:           now,
				DateTo:             now.Add(15 * time.Second),
				ProcessingDuration: 15 * time.Second,
			},
		},
		{
			name: "OutOfOrderTimestamps",
			steps: []StepRecord{
				{Timestamp: now.Add(5 * time.Second), Step: "confirm", OK: true},
				{Timestamp: now, Step: "reserve", OK: true},
			},
			expected: &RunReport{
				OrderID:            "order-1",
				TotalSteps:         2,
				SuccessfulSteps:    2,
				StepUsage:          map[string]int{"confirm": 1, "reserve": 1},
				ErrorBreakdown:     map[string]int{},
				DateFrom:           now,
				DateTo:             now.Add(5 * time.Second),
				ProcessingDuration: 5 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, reporter.Generate("order-1", tt.steps))
		})
	}
}

func TestRunReport_MarshalLogObject(t *testing.T) {
	report := &RunReport{
		OrderID:        "order-1",
		TotalSteps:     2,
		PollAttempts:   1,
		StepUsage:      map[string]int{"status": 1, "reserve": 1},
		ErrorBreakdown: map[string]int{"1172": 1},
	}
	enc := zapcore.NewMapObjectEncoder()
	assert.NoError(t, report.MarshalLogObject(enc))
	assert.Equal(t, "order-1", enc.Fields["order_id"])
	assert.Equal(t, 2, enc.Fields["total_steps"])
	assert.Equal(t, 1, enc.Fields["poll_attempts"])
	assert.Equal(t, map[string]interface{}{"status": 1, "reserve": 1}, enc.Fields["step_usage"])
	assert.Equal(t, map[string]interface{}{"1172": 1}, enc.Fields["error_breakdown"])
}
