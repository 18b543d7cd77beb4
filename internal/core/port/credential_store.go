package port

import "context"

// CredentialStore resolves stored step-up credentials for a user. PIN hashes
// are Argon2id encoded strings produced by the security package.
type CredentialStore interface {
	PINHash(ctx context.Context, userID string) (string, error)
}
