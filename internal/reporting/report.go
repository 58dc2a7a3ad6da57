package reporting

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// StepRecord is a single provider call made during a lifecycle run.
type StepRecord struct {
	Timestamp  time.Time
	Step       string // provider operation, e.g. "reserve" or "status"
	OK         bool
	ReturnCode string
	Message    string
	Duration   time.Duration
}

// RunReport summarizes one lifecycle run from its step records.
type RunReport struct {
	OrderID            string
	TotalSteps         int
	SuccessfulSteps    int
	FailedSteps        int
	PollAttempts       int            // status checks made while awaiting authorization
	StepUsage          map[string]int // calls per operation
	ErrorBreakdown     map[string]int // failed calls per return code
	DateFrom           time.Time
	DateTo             time.Time
	ProcessingDuration time.Duration
}

// RunReporter generates reports from step records.
type RunReporter struct {
	pollStep string
}

// NewRunReporter creates a RunReporter that counts pollStep records as poll attempts.
func NewRunReporter(pollStep string) *RunReporter {
	return &RunReporter{pollStep: pollStep}
}

// Generate analyzes steps and produces a RunReport.
func (rr *RunReporter) Generate(orderID string, steps []StepRecord) *RunReport {
	report := &RunReport{
		OrderID:        orderID,
		StepUsage:      make(map[string]int),
		ErrorBreakdown: make(map[string]int),
	}

	for i, step := range steps {
		report.TotalSteps++
		report.StepUsage[step.Step]++
		if step.Step == rr.pollStep {
			report.PollAttempts++
		}

		end := step.Timestamp.Add(step.Duration)
		if i == 0 || step.Timestamp.Before(report.DateFrom) {
			report.DateFrom = step.Timestamp
		}
		if i == 0 || end.After(report.DateTo) {
			report.DateTo = end
		}

		if step.OK {
			report.SuccessfulSteps++
			continue
		}
		report.FailedSteps++
		code := step.ReturnCode
		if code == "" {
			code = "transport"
		}
		report.ErrorBreakdown[code]++
	}

	if report.TotalSteps > 0 {
		report.ProcessingDuration = report.DateTo.Sub(report.DateFrom)
	}
	return report
}

// MarshalLogObject lets a report be logged with zap.Object.
func (r *RunReport) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("order_id", r.OrderID)
	enc.AddInt("total_steps", r.TotalSteps)
	enc.AddInt("successful_steps", r.SuccessfulSteps)
	enc.AddInt("failed_steps", r.FailedSteps)
	enc.AddInt("poll_attempts", r.PollAttempts)
	enc.AddDuration("processing_duration", r.ProcessingDuration)
	if err := enc.AddObject("step_usage", countMap(r.StepUsage)); err != nil {
		return err
	}
	return enc.AddObject("error_breakdown", countMap(r.ErrorBreakdown))
}

type countMap map[string]int

func (m countMap) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for k, v := range m {
		enc.AddInt(k, v)
	}
	return nil
}
