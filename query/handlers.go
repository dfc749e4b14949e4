package query

import (
	"context"

	"github.com/goliatone/go-authretry/core"
)

type CredentialStatusReader interface {
	Status(ctx context.Context) (core.CredentialStatus, error)
}

type CredentialStatusQuery struct {
	reader CredentialStatusReader
}

func NewCredentialStatusQuery(reader CredentialStatusReader) *CredentialStatusQuery {
	return &CredentialStatusQuery{reader: reader}
}

func (q *CredentialStatusQuery) Query(ctx context.Context, _ CredentialStatusMessage) (core.CredentialStatus, error) {
	if q == nil || q.reader == nil {
		return core.CredentialStatus{}, queryDependencyError("query: credential status reader is required")
	}
	return q.reader.Status(ctx)
}
