package core

import "testing"

func TestCanTransition_Jobs(t *testing.T) {
	allowed := []struct{ from, to string }{
		{JobOpen, JobAssigned},
		{JobOpen, JobCancelled},
		{JobAssigned, JobInProgress},
		{JobAssigned, JobOpen},
		{JobInProgress, JobCompleted},
		{JobInProgress, JobCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition("jobs", tc.from, tc.to) {
			t.Errorf("expected %s -> %s allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to string }{
		{JobCompleted, JobOpen}, // terminal
		{JobCompleted, JobInProgress},
		{JobCancelled, JobOpen},
		{JobOpen, JobCompleted}, // must pass through IN_PROGRESS
		{JobOpen, JobInProgress},
	}
	for _, tc := range denied {
		if CanTransition("jobs", tc.from, tc.to) {
			t.Errorf("expected %s -> %s denied", tc.from, tc.to)
		}
	}
}

func TestCanTransition_Requests(t *testing.T) {
	if !CanTransition("service_requests", RequestSubmitted, RequestTriaged) {
		t.Errorf("expected SUBMITTED -> TRIAGED allowed")
	}
	if CanTransition("service_requests", RequestSubmitted, RequestConverted) {
		t.Errorf("expected SUBMITTED -> CONVERTED denied")
	}
	if CanTransition("service_requests", RequestDeclined, RequestSubmitted) {
		t.Errorf("expected DECLINED terminal")
	}
}

func TestCanTransition_UnknownKind(t *testing.T) {
	// Entities without a table are not status-guarded.
	if !CanTransition("blog", "DRAFT", "PUBLISHED") {
		t.Errorf("unknown kinds must allow all transitions")
	}
}

func TestCheckTransition_ErrorDetail(t *testing.T) {
	err := CheckTransition("jobs", JobCompleted, JobOpen)
	if err == nil {
		t.Fatalf("expected error")
	}
	terr, ok := err.(*TransitionError)
	if !ok {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if terr.From != JobCompleted || terr.To != JobOpen {
		t.Errorf("error fields wrong: %+v", terr)
	}
}
