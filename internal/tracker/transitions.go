package tracker

import (
	"errors"
	"fmt"

	"permitline/internal/domain"
)

// ErrInvalidTransition is returned when a status update does not follow the
// transition table below. Force bypasses the table, matching how manual
// corrections are applied by an authority.
var ErrInvalidTransition = errors.New("invalid status transition")

// statusTransitions maps each status to the statuses that may follow it.
// Terminal statuses (approved, approved_with_conditions, withdrawn) have no
// outgoing edges; refused may still be appealed.
var statusTransitions = map[string][]string{
	domain.StatusDraft:     {domain.StatusSubmitted, domain.StatusWithdrawn},
	domain.StatusSubmitted: {domain.StatusValidated, domain.StatusWithdrawn},
	domain.StatusValidated: {
		domain.StatusPendingDecision,
		domain.StatusApproved,
		domain.StatusApprovedWithConditions,
		domain.StatusRefused,
		domain.StatusWithdrawn,
	},
	domain.StatusPendingDecision: {
		domain.StatusApproved,
		domain.StatusApprovedWithConditions,
		domain.StatusRefused,
		domain.StatusWithdrawn,
	},
	domain.StatusRefused: {domain.StatusAppealed},
	domain.StatusAppealed: {
		domain.StatusApproved,
		domain.StatusApprovedWithConditions,
		domain.StatusRefused,
	},
}

func ensureStatusTransition(oldStatus, newStatus string, force bool) error {
	if force {
		return nil
	}
	for _, allowed := range statusTransitions[oldStatus] {
		if allowed == newStatus {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldStatus, newStatus)
}

// DecidedStatuses are the terminal decision outcomes used by summary maths.
func isDecided(status string) bool {
	switch status {
	case domain.StatusApproved, domain.StatusApprovedWithConditions, domain.StatusRefused:
		return true
	}
	return false
}

func isSuccessful(status string) bool {
	return status == domain.StatusApproved || status == domain.StatusApprovedWithConditions
}
