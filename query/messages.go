package query

const TypeCredentialStatus = "authretry.query.credential.status"

// CredentialStatusMessage asks for the client's credential state. The token
// itself is never returned.
type CredentialStatusMessage struct{}

func (CredentialStatusMessage) Type() string { return TypeCredentialStatus }

func (CredentialStatusMessage) Validate() error { return nil }
