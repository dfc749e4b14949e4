package gocommand

import (
	"context"
	"fmt"
	"strings"

	authcommand "github.com/goliatone/go-authretry/command"
	"github.com/goliatone/go-authretry/core"
	authquery "github.com/goliatone/go-authretry/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// CredentialService is what the credential commands and query need from a
// client. *core.Client satisfies it.
type CredentialService interface {
	authcommand.CredentialService
	authquery.CredentialStatusReader
}

// ValidateMessageContract enforces Type() plus the optional Validate().
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) Register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run as background jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Subscriptions collects dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterCredentialHandlers registers and subscribes the refresh and clear
// commands plus the status query for service.
func RegisterCredentialHandlers(
	adapter *RegistryAdapter,
	service CredentialService,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: credential service is required")
	}
	subs := Subscriptions{}

	refreshSub, err := RegisterAndSubscribe(adapter, authcommand.NewRefreshCredentialCommand(service), runnerOpts...)
	if err != nil {
		return nil, err
	}
	subs = append(subs, refreshSub)

	clearSub, err := RegisterAndSubscribe(adapter, authcommand.NewClearCredentialCommand(service), runnerOpts...)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	subs = append(subs, clearSub)

	statusSub, err := RegisterAndSubscribeQuery(adapter, authquery.NewCredentialStatusQuery(service), runnerOpts...)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return append(subs, statusSub), nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RefreshCredential dispatches a forced refresh and returns the resulting
// status.
func RefreshCredential(ctx context.Context, reason string) (core.CredentialStatus, error) {
	collector := command.NewResult[core.CredentialStatus]()
	ctx = command.ContextWithResult(ctx, collector)
	if err := Dispatch(ctx, authcommand.RefreshCredentialMessage{Reason: reason}); err != nil {
		return core.CredentialStatus{}, err
	}
	status, _ := collector.Load()
	return status, nil
}

func CredentialStatus(ctx context.Context) (core.CredentialStatus, error) {
	return Query[authquery.CredentialStatusMessage, core.CredentialStatus](ctx, authquery.CredentialStatusMessage{})
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.Register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.Register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
