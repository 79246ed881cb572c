// Package vehicletest provides a bridge-agnostic conformance suite for vehicle links.
//
// Every link must accept neutral and release frames, report a cancelled context as
// UNAVAILABLE and return only normalized errors.
package vehicletest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/vehicle"
)

// Capabilities describe what the suite may expect from a link.
type Capabilities struct {
	NeutralPWM uint16
	// MaxSendLatency bounds one SendRC call on an idle link.
	MaxSendLatency time.Duration
	// Inject, when set, makes the next sends fail with the given bridge token so the
	// suite can check error mapping. Nil skips the failure mapping checks.
	Inject func(link vehicle.Link, token string)
}

// ConformanceResult represents the result of one conformance check.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
}

// ConformanceReport represents the complete conformance run.
type ConformanceReport struct {
	LinkName      string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the suite against links built by newLink.
func RunConformance(t *testing.T, name string, newLink func() vehicle.Link, caps Capabilities) *ConformanceReport {
	t.Helper()
	if caps.NeutralPWM == 0 {
		caps.NeutralPWM = 1500
	}
	if caps.MaxSendLatency == 0 {
		caps.MaxSendLatency = 100 * time.Millisecond
	}

	start := time.Now()
	report := &ConformanceReport{LinkName: name, OverallPassed: true}

	runFrameTests(newLink, caps, report)
	runCancelledContextTest(newLink, report)
	runRepeatTest(newLink, caps, report)
	if caps.Inject != nil {
		runFailureMappingTests(newLink, caps, report)
	}

	report.Duration = time.Since(start)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Errorf("link conformance failed: %d/%d checks passed", report.PassedTests, report.TotalTests)
	}
	return report
}

func neutral(pwm uint16) lander.Command {
	var cmd lander.Command
	for i := lander.ChannelRoll; i <= lander.ChannelYaw; i++ {
		cmd.Channels[i] = pwm
	}
	return cmd
}

func runFrameTests(newLink func() vehicle.Link, caps Capabilities, report *ConformanceReport) {
	frames := []struct {
		name string
		cmd  lander.Command
	}{
		{"SendRC_Neutral", neutral(caps.NeutralPWM)},
		{"SendRC_Release", lander.ReleaseCommand()},
	}

	for _, f := range frames {
		link := newLink()
		result := ConformanceResult{TestName: f.name}

		begin := time.Now()
		err := link.SendRC(context.Background(), f.cmd)
		result.Duration = time.Since(begin)

		switch {
		case err != nil:
			result.Error = fmt.Sprintf("SendRC failed: %v", err)
		case result.Duration > caps.MaxSendLatency:
			result.Error = fmt.Sprintf("SendRC took %v, limit %v", result.Duration, caps.MaxSendLatency)
		default:
			result.Passed = true
		}
		report.addResult(result)
	}
}

func runCancelledContextTest(newLink func() vehicle.Link, report *ConformanceReport) {
	link := newLink()
	result := ConformanceResult{TestName: "SendRC_CancelledContext"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	begin := time.Now()
	err := link.SendRC(ctx, lander.ReleaseCommand())
	result.Duration = time.Since(begin)

	if errors.Is(err, vehicle.ErrUnavailable) {
		result.Passed = true
	} else {
		result.Error = fmt.Sprintf("expected UNAVAILABLE, got %v", err)
	}
	report.addResult(result)
}

func runRepeatTest(newLink func() vehicle.Link, caps Capabilities, report *ConformanceReport) {
	link := newLink()
	result := ConformanceResult{TestName: "SendRC_Repeat"}
	cmd := neutral(caps.NeutralPWM)

	begin := time.Now()
	result.Passed = true
	for i := 0; i < 10; i++ {
		if err := link.SendRC(context.Background(), cmd); err != nil {
			result.Passed = false
			result.Error = fmt.Sprintf("send %d failed: %v", i, err)
			break
		}
	}
	result.Duration = time.Since(begin)
	report.addResult(result)
}

func runFailureMappingTests(newLink func() vehicle.Link, caps Capabilities, report *ConformanceReport) {
	cases := []struct {
		token string
		want  error
	}{
		{"OUT_OF_RANGE", vehicle.ErrInvalidRange},
		{"BUSY", vehicle.ErrBusy},
		{"UNAVAILABLE", vehicle.ErrUnavailable},
		{"SOMETHING_ODD", vehicle.ErrInternal},
	}

	for _, c := range cases {
		link := newLink()
		caps.Inject(link, c.token)
		result := ConformanceResult{TestName: "FailureMapping_" + c.token}

		begin := time.Now()
		err := link.SendRC(context.Background(), lander.ReleaseCommand())
		result.Duration = time.Since(begin)

		if errors.Is(err, c.want) {
			result.Passed = true
		} else {
			result.Error = fmt.Sprintf("expected %v, got %v", c.want, err)
		}
		report.addResult(result)
	}
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.Results = append(r.Results, result)
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Helper()
	t.Logf("Link: %s", report.LinkName)
	t.Logf("Checks: %d passed, %d failed (%v)", report.PassedTests, report.FailedTests, report.Duration)
	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		if result.Error != "" {
			t.Logf("  %s %s: %s", status, result.TestName, result.Error)
			continue
		}
		t.Logf("  %s %s (%v)", status, result.TestName, result.Duration)
	}
}
