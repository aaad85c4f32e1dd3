package timeline

import (
	"fmt"
	"time"
)

// MinSessionDuration is the floor applied after each per-strike reduction
// so a timeline can never contain zero or negative sessions.
const MinSessionDuration = time.Minute

// Calculate produces the full escalation timeline from start, assuming the
// user never reports safety. The result holds 2*strikeThreshold events in
// strictly increasing time order; the last one is always the missed_report
// whose time is the emergency-activation instant.
func Calculate(start time.Time, sessionDuration, reportWindow, reductionPerStrike time.Duration, strikeThreshold int) []Event {
	if strikeThreshold < 1 {
		return nil
	}

	events := make([]Event, 0, 2*strikeThreshold)
	current := start
	duration := sessionDuration

	for i := 0; i < strikeThreshold; i++ {
		if duration < MinSessionDuration {
			duration = MinSessionDuration
		}

		end := current.Add(duration)
		deadline := end.Add(reportWindow)
		d := deadline

		events = append(events, Event{
			Time:            end,
			Type:            EventSessionEnd,
			Strike:          i,
			Description:     "check-in due",
			Deadline:        &d,
			StrikeThreshold: strikeThreshold,
		})
		events = append(events, Event{
			Time:            deadline,
			Type:            EventMissedReport,
			Strike:          i + 1,
			Description:     fmt.Sprintf("missed check-in %d of %d", i+1, strikeThreshold),
			StrikeThreshold: strikeThreshold,
		})

		current = deadline
		duration -= reductionPerStrike
	}
	return events
}

// StrikesBefore counts the missed_report events whose time has already
// passed. Reconciliation trusts this over any stored counter.
func StrikesBefore(events []Event, now time.Time) int {
	n := 0
	for _, e := range events {
		if e.Type == EventMissedReport && e.Time.Before(now) {
			n++
		}
	}
	return n
}

// OpenWindow returns the session_end event whose grace window contains now,
// or nil when no report is currently due.
func OpenWindow(events []Event, now time.Time) *Event {
	for i := range events {
		e := events[i]
		if e.Type != EventSessionEnd || e.Deadline == nil {
			continue
		}
		if !now.Before(e.Time) && now.Before(*e.Deadline) {
			return &events[i]
		}
	}
	return nil
}

// NextSessionEnd returns the earliest session_end event strictly in the
// future, or nil when none remain.
func NextSessionEnd(events []Event, now time.Time) *Event {
	for i := range events {
		if events[i].Type == EventSessionEnd && events[i].Time.After(now) {
			return &events[i]
		}
	}
	return nil
}

// Final returns the last event of the timeline: the emergency-activation
// missed_report. Nil on an empty timeline.
func Final(events []Event) *Event {
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

// Expired reports whether now is at or past the final missed_report, i.e.
// the whole check-in loop has elapsed and escalation belongs to the
// server-side scanner.
func Expired(events []Event, now time.Time) bool {
	final := Final(events)
	return final != nil && !now.Before(final.Time)
}
