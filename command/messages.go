package command

import (
	"strings"
)

const (
	TypeRefreshCredential = "authretry.command.credential.refresh"
	TypeClearCredential   = "authretry.command.credential.clear"

	maxReasonLength = 256
)

// RefreshCredentialMessage forces a refresh cycle through the coordinator.
type RefreshCredentialMessage struct {
	Reason string
}

func (RefreshCredentialMessage) Type() string { return TypeRefreshCredential }

func (m RefreshCredentialMessage) Validate() error {
	return validateReason(m.Reason, false)
}

// ClearCredentialMessage logs the client out by clearing every credential
// store.
type ClearCredentialMessage struct {
	Reason string
}

func (ClearCredentialMessage) Type() string { return TypeClearCredential }

func (m ClearCredentialMessage) Validate() error {
	return validateReason(m.Reason, true)
}

func validateReason(reason string, required bool) error {
	trimmed := strings.TrimSpace(reason)
	if required && trimmed == "" {
		return commandValidationError("reason", "reason is required")
	}
	if len(trimmed) > maxReasonLength {
		return commandValidationError("reason", "reason must be at most 256 characters")
	}
	return nil
}
