package webhook

import "sort"

// PullRequestReviewEvent is the GitHub event type carrying review submissions.
const PullRequestReviewEvent = "pull_request_review"

// EventGate accepts a fixed set of event types. Matching is exact and case-sensitive.
type EventGate struct {
	accepted map[string]struct{}
}

// NewEventGate builds a gate accepting exactly events.
func NewEventGate(events ...string) EventGate {
	accepted := make(map[string]struct{}, len(events))
	for _, ev := range events {
		accepted[ev] = struct{}{}
	}
	return EventGate{accepted: accepted}
}

// DefaultEventGate accepts only pull_request_review.
func DefaultEventGate() EventGate {
	return NewEventGate(PullRequestReviewEvent)
}

// Accept reports whether eventType is in the allow-set.
func (g EventGate) Accept(eventType string) bool {
	_, ok := g.accepted[eventType]
	return ok
}

// Events returns the allow-set in sorted order.
func (g EventGate) Events() []string {
	out := make([]string, 0, len(g.accepted))
	for ev := range g.accepted {
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}
