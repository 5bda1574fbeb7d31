package models

import "testing"

func TestIsValidEscrowTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{EscrowStatusCreated, EscrowStatusFunded, true},
		{EscrowStatusFunded, EscrowStatusCompleted, true},
		{EscrowStatusInProgress, EscrowStatusCompleted, true},

		// Dispute paths
		{EscrowStatusCreated, EscrowStatusDisputed, true},
		{EscrowStatusFunded, EscrowStatusDisputed, true},
		{EscrowStatusInProgress, EscrowStatusDisputed, true},
		{EscrowStatusDisputed, EscrowStatusCancelled, true},

		// Cancellation paths
		{EscrowStatusCreated, EscrowStatusCancelled, true},
		{EscrowStatusFunded, EscrowStatusCancelled, true},
		{EscrowStatusInProgress, EscrowStatusCancelled, true},

		// Invalid transitions
		{EscrowStatusCreated, EscrowStatusCompleted, false},
		{EscrowStatusCreated, EscrowStatusInProgress, false},
		{EscrowStatusFunded, EscrowStatusCreated, false},
		{EscrowStatusCompleted, EscrowStatusDisputed, false},
		{EscrowStatusCompleted, EscrowStatusCancelled, false},
		{EscrowStatusCancelled, EscrowStatusFunded, false},
		{EscrowStatusCancelled, EscrowStatusCancelled, false},
		{EscrowStatusDisputed, EscrowStatusFunded, false},
		{"nonexistent", EscrowStatusFunded, false},
		{EscrowStatusCreated, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidEscrowTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidEscrowTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestIsValidMilestoneTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{MilestoneStatusPending, MilestoneStatusInProgress, true},
		{MilestoneStatusInProgress, MilestoneStatusCompleted, true},
		{MilestoneStatusCompleted, MilestoneStatusApproved, true},

		// Dispute from every live status
		{MilestoneStatusPending, MilestoneStatusDisputed, true},
		{MilestoneStatusInProgress, MilestoneStatusDisputed, true},
		{MilestoneStatusCompleted, MilestoneStatusDisputed, true},
		{MilestoneStatusApproved, MilestoneStatusDisputed, true},

		// Invalid transitions
		{MilestoneStatusPending, MilestoneStatusCompleted, false},
		{MilestoneStatusPending, MilestoneStatusApproved, false},
		{MilestoneStatusInProgress, MilestoneStatusApproved, false},
		{MilestoneStatusCompleted, MilestoneStatusInProgress, false},
		{MilestoneStatusApproved, MilestoneStatusCompleted, false},
		{MilestoneStatusDisputed, MilestoneStatusPending, false},
		{MilestoneStatusDisputed, MilestoneStatusDisputed, false},
		{"nonexistent", MilestoneStatusDisputed, false},
		{MilestoneStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidMilestoneTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidMilestoneTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllEscrowStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		EscrowStatusCreated, EscrowStatusFunded, EscrowStatusInProgress,
		EscrowStatusCompleted, EscrowStatusDisputed, EscrowStatusCancelled,
	}

	for _, status := range allStatuses {
		if _, ok := ValidEscrowTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidEscrowTransitions map", status)
		}
	}
}

func TestAllMilestoneStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		MilestoneStatusPending, MilestoneStatusInProgress,
		MilestoneStatusCompleted, MilestoneStatusApproved, MilestoneStatusDisputed,
	}

	for _, status := range allStatuses {
		if _, ok := ValidMilestoneTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidMilestoneTransitions map", status)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminalEscrow := []string{EscrowStatusCompleted, EscrowStatusCancelled}
	for _, status := range terminalEscrow {
		if transitions := ValidEscrowTransitions[status]; len(transitions) != 0 {
			t.Errorf("terminal escrow status %q should have no transitions, got %v", status, transitions)
		}
	}

	if transitions := ValidMilestoneTransitions[MilestoneStatusDisputed]; len(transitions) != 0 {
		t.Errorf("terminal milestone status %q should have no transitions, got %v", MilestoneStatusDisputed, transitions)
	}
}

func TestMilestoneIsTerminal(t *testing.T) {
	tests := []struct {
		status   string
		expected bool
	}{
		{MilestoneStatusPending, false},
		{MilestoneStatusInProgress, false},
		{MilestoneStatusCompleted, false},
		{MilestoneStatusApproved, true},
		{MilestoneStatusDisputed, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			m := Milestone{Status: tt.status}
			if got := m.IsTerminal(); got != tt.expected {
				t.Errorf("IsTerminal() with status %q = %v, want %v", tt.status, got, tt.expected)
			}
		})
	}
}
