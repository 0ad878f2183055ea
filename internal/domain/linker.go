package domain

import "context"

// UnknownName is the display name recorded when the collaborator cannot
// resolve a player.
const UnknownName = "unknown"

// Identity holds the display attributes of an external account, resolved
// best-effort from the collaborator.
type Identity struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	Level  string `json:"level"`
}

// UnknownIdentity returns the placeholder identity used on lookup failure
func UnknownIdentity() Identity {
	return Identity{Name: UnknownName, Region: "N/A", Level: "N/A"}
}

// AccountLinker is the external system that authenticates bot accounts and
// establishes or dissolves friend relationships. Every call can fail
// independently; the only ordering the core imposes is authenticate before
// establish/dissolve. Establish and dissolve report the collaborator's
// verdict as (ok, message); a non-nil error means the call itself did not
// complete (transport failure, deadline).
type AccountLinker interface {
	Authenticate(ctx context.Context, accountUID, credential string) (string, error)
	EstablishRelationship(ctx context.Context, token, targetUID string) (bool, string, error)
	DissolveRelationship(ctx context.Context, token, targetUID string) (bool, string, error)
	ResolveIdentity(ctx context.Context, targetUID string) (Identity, error)
}
