package query

import (
	"github.com/goliatone/go-authretry/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[CredentialStatusMessage, core.CredentialStatus] = (*CredentialStatusQuery)(nil)
	_ CredentialStatusReader                                        = (*core.Client)(nil)
)
