package core

import (
	"context"
	"strings"
	"time"
)

// Send dispatches desc with the current credential. A credential-invalid
// failure triggers one shared refresh and exactly one resend; every other
// failure is escalated and returned without retry.
func (c *Client) Send(ctx context.Context, desc RequestDescriptor) (Response, error) {
	if c == nil {
		return Response{}, newInternalError(nil, "core: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	desc = desc.Clone()
	fields := map[string]any{
		"request":             desc.OperationName(),
		"kind":                desc.Kind,
		"credential_strategy": c.strategy.Name(),
	}
	res, err := c.send(ctx, desc, fields)
	c.observer().observeOperation(ctx, startedAt, "send", err, fields)
	if err != nil {
		return Response{}, c.mapError(err)
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, desc RequestDescriptor, fields map[string]any) (Response, error) {
	if strings.TrimSpace(desc.URL) == "" {
		return Response{}, newBadInputError("core: request url is required")
	}
	transport, err := c.resolveTransport(desc.Kind)
	if err != nil {
		return Response{}, err
	}

	credential, _, err := c.strategy.Current(ctx)
	if err != nil {
		return Response{}, newInternalError(err, "core: read credential")
	}
	attempt := desc.WithCredential(c.config.AuthHeader, c.config.AuthScheme, credential)
	fields["has_credential"] = !credential.IsZero()

	res, failure := c.dispatch(ctx, transport, attempt)
	if failure == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, newCanceledError(ctxErr)
	}
	classification := c.classifier.Classify(*failure)
	fields["classification"] = string(classification.Kind)

	if !classification.CredentialInvalid() {
		return Response{}, c.fail(ctx, attempt, *failure, classification)
	}
	if attempt.Retried {
		return Response{}, c.exhausted(ctx, attempt, *failure, classification)
	}
	if !c.strategy.Refreshable() {
		failErr := newCredentialRejectedError(attempt, failure.Response, classification, ErrorCredentialInvalid)
		c.escalator.Escalate(ctx, Escalation{
			Operation:      attempt.OperationName(),
			Classification: classification,
			Terminal:       true,
			Err:            failErr,
		})
		return Response{}, failErr
	}

	refreshed, err := c.strategy.Refresh(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, newCanceledError(ctxErr)
		}
		fields["refresh_failure"] = true
		failErr := newRefreshFailureForRequest(err, attempt, classification)
		c.escalator.Escalate(ctx, Escalation{
			Operation:      attempt.OperationName(),
			Classification: classification,
			RefreshFailure: true,
			Terminal:       true,
			Err:            failErr,
		})
		return Response{}, failErr
	}

	retry := desc.WithRetry().WithCredential(c.config.AuthHeader, c.config.AuthScheme, refreshed)
	fields["retried"] = true
	res, failure = c.dispatch(ctx, transport, retry)
	if failure == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, newCanceledError(ctxErr)
	}
	classification = c.classifier.Classify(*failure)
	fields["classification"] = string(classification.Kind)
	if classification.CredentialInvalid() {
		return Response{}, c.exhausted(ctx, retry, *failure, classification)
	}
	return Response{}, c.fail(ctx, retry, *failure, classification)
}

// dispatch returns a FailedCall for transport errors and for responses with
// a status of 400 or above.
func (c *Client) dispatch(ctx context.Context, transport Transport, desc RequestDescriptor) (Response, *FailedCall) {
	dispatchCtx := ctx
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}
	res, err := transport.Do(dispatchCtx, desc.transportRequest())
	if err != nil {
		failure := &FailedCall{Err: err}
		if res.StatusCode > 0 {
			failure.Response = &res
		}
		return Response{}, failure
	}
	if res.StatusCode >= 400 {
		return Response{}, &FailedCall{Response: &res}
	}
	return res, nil
}

// fail escalates a non-credential failure. It is reported but never signals
// the environment.
func (c *Client) fail(ctx context.Context, desc RequestDescriptor, failure FailedCall, classification Classification) error {
	var failErr error
	if failure.Response == nil {
		failErr = newTransportError(failure.Err, desc)
	} else {
		failErr = newRequestFailedError(desc, *failure.Response, classification)
	}
	c.escalator.Escalate(ctx, Escalation{
		Operation:      desc.OperationName(),
		Classification: classification,
		Err:            failErr,
	})
	return failErr
}

func (c *Client) exhausted(ctx context.Context, desc RequestDescriptor, failure FailedCall, classification Classification) error {
	failErr := newCredentialRejectedError(desc, failure.Response, classification, ErrorRetryExhausted)
	c.escalator.Escalate(ctx, Escalation{
		Operation:      desc.OperationName(),
		Classification: classification,
		Terminal:       true,
		Err:            failErr,
	})
	return failErr
}
