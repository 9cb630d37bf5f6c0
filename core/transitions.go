package core

import "fmt"

// Job statuses.
const (
	JobOpen       = "OPEN"
	JobAssigned   = "ASSIGNED"
	JobInProgress = "IN_PROGRESS"
	JobCompleted  = "COMPLETED"
	JobCancelled  = "CANCELLED"
)

// Service request statuses.
const (
	RequestSubmitted = "SUBMITTED"
	RequestTriaged   = "TRIAGED"
	RequestConverted = "CONVERTED"
	RequestDeclined  = "DECLINED"
)

// Invite statuses.
const (
	InvitePending  = "PENDING"
	InviteAccepted = "ACCEPTED"
	InviteRevoked  = "REVOKED"
	InviteExpired  = "EXPIRED"
)

// jobTransitions is the allowed status graph for jobs. COMPLETED and
// CANCELLED are terminal. An ASSIGNED job can be put back to OPEN when
// the assignee is removed.
var jobTransitions = map[string][]string{
	JobOpen:       {JobAssigned, JobCancelled},
	JobAssigned:   {JobInProgress, JobOpen, JobCancelled},
	JobInProgress: {JobCompleted, JobCancelled},
}

var requestTransitions = map[string][]string{
	RequestSubmitted: {RequestTriaged, RequestDeclined},
	RequestTriaged:   {RequestConverted, RequestDeclined},
}

var inviteTransitions = map[string][]string{
	InvitePending: {InviteAccepted, InviteRevoked, InviteExpired},
}

var transitionTables = map[string]map[string][]string{
	"jobs":             jobTransitions,
	"service_requests": requestTransitions,
	"invites":          inviteTransitions,
}

// CanTransition reports whether the status change is allowed for the
// entity kind. Unknown kinds allow everything; status enforcement only
// applies to entities with a transition table.
func CanTransition(kind, from, to string) bool {
	table, ok := transitionTables[kind]
	if !ok {
		return true
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a TransitionError when the change is not
// allowed.
func CheckTransition(kind, from, to string) error {
	if CanTransition(kind, from, to) {
		return nil
	}
	return &TransitionError{Kind: kind, From: from, To: to}
}

// TransitionError is a client-side validation failure: the requested
// status change is not in the allowed-transitions table. It is raised
// before any cache write or network call.
type TransitionError struct {
	Kind string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: transition %s -> %s not allowed", e.Kind, e.From, e.To)
}
