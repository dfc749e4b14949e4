package command

import (
	"context"

	"github.com/goliatone/go-authretry/core"
	gocmd "github.com/goliatone/go-command"
)

type CredentialService interface {
	ForceRefresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) (core.CredentialStatus, error)
}

type RefreshCredentialCommand struct {
	service CredentialService
}

func NewRefreshCredentialCommand(service CredentialService) *RefreshCredentialCommand {
	return &RefreshCredentialCommand{service: service}
}

// Execute stores the post-refresh CredentialStatus when a result collector
// is attached to ctx.
func (c *RefreshCredentialCommand) Execute(ctx context.Context, msg RefreshCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.service.ForceRefresh(ctx); err != nil {
		return err
	}
	status, err := c.service.Status(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, status)
	return nil
}

type ClearCredentialCommand struct {
	service CredentialService
}

func NewClearCredentialCommand(service CredentialService) *ClearCredentialCommand {
	return &ClearCredentialCommand{service: service}
}

func (c *ClearCredentialCommand) Execute(ctx context.Context, msg ClearCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.service.Logout(ctx); err != nil {
		return err
	}
	status, err := c.service.Status(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, status)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
