package domain

import (
	"testing"
	"time"
)

func TestTicketStatusPredicates(t *testing.T) {
	tests := []struct {
		status    TicketStatus
		active    bool
		claimable bool
		terminal  bool
	}{
		{TicketStatusNew, false, true, false},
		{TicketStatusQueued, false, true, false},
		{TicketStatusAssigned, true, false, false},
		{TicketStatusInProgress, true, false, false},
		{TicketStatusWaitingUser, true, false, false},
		{TicketStatusClosed, false, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if !tt.status.Valid() {
				t.Fatalf("%s should be valid", tt.status)
			}
			if got := tt.status.Active(); got != tt.active {
				t.Errorf("Active() = %v, want %v", got, tt.active)
			}
			if got := tt.status.Claimable(); got != tt.claimable {
				t.Errorf("Claimable() = %v, want %v", got, tt.claimable)
			}
			if got := tt.status.Terminal(); got != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
	if TicketStatus("resolved").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestWorkEligibility(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		agent *Agent
		want  Eligibility
	}{
		{"nil", nil, EligibilityNotAuthorized},
		{"authorized", &Agent{AuthorizedForWork: true}, EligibilityOK},
		{"not authorized", &Agent{AuthorizedForWork: false}, EligibilityNotAuthorized},
		{"blocked", &Agent{AuthorizedForWork: true, Blocked: true}, EligibilityNotAuthorized},
		{"expired", &Agent{AuthorizedForWork: true, AuthorizedUntil: &past}, EligibilityExpired},
		{"expires exactly now", &Agent{AuthorizedForWork: true, AuthorizedUntil: &now}, EligibilityExpired},
		{"not yet expired", &Agent{AuthorizedForWork: true, AuthorizedUntil: &future}, EligibilityOK},
		{"blocked wins over expiry", &Agent{AuthorizedForWork: true, Blocked: true, AuthorizedUntil: &past}, EligibilityNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.agent.WorkEligibility(now); got != tt.want {
				t.Fatalf("WorkEligibility = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActorCapabilities(t *testing.T) {
	if !AgentActor("g1").CanActFor("g1") {
		t.Error("agent acts for itself")
	}
	if AgentActor("g1").CanActFor("g2") {
		t.Error("agent must not act for another agent")
	}
	if !AdminActor("a1").CanActFor("g2") {
		t.Error("admin overrides")
	}
	if UserActor("c1").CanActFor("c1") {
		t.Error("users never act for agents")
	}
	if UserActor("c1").CanWork() {
		t.Error("users cannot work tickets")
	}
	if !SystemActor().CanActFor("g1") {
		t.Error("reaper acts for every agent")
	}
}

func TestReleaseEventFor(t *testing.T) {
	if ReleaseEventFor(SessionEndTimeout) != TicketEventAgentTimeoutRelease {
		t.Error("timeout release event")
	}
	if ReleaseEventFor(SessionEndLogout) != TicketEventAgentManualRelease {
		t.Error("logout release event")
	}
	if ReleaseEventFor(SessionEndManualRelease) != TicketEventAgentManualRelease {
		t.Error("manual release event")
	}
}

func TestTicketAssignedTo(t *testing.T) {
	g1 := "g1"
	tk := &Ticket{Status: TicketStatusInProgress, AssignedAgentID: &g1}
	if !tk.AssignedTo("g1") {
		t.Fatal("expected assigned to g1")
	}
	tk.Status = TicketStatusQueued
	if tk.AssignedTo("g1") {
		t.Fatal("queued tickets are not held")
	}
}
