package command

import (
	"github.com/goliatone/go-authretry/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[RefreshCredentialMessage] = (*RefreshCredentialCommand)(nil)
	_ gocmd.Commander[ClearCredentialMessage]   = (*ClearCredentialCommand)(nil)
	_ CredentialService                         = (*core.Client)(nil)
)
