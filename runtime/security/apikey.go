package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// apiKeyStore is the subset of runtime/store/relational.Store the API-key
// verifier needs. Defined here rather than imported directly so this
// package stays free of a hard dependency on the store's concrete type.
type apiKeyStore interface {
	LookupAPIKey(ctx context.Context, hashedKey string) (domain.APIKey, error)
	TouchAPIKey(ctx context.Context, hashedKey string, at time.Time) error
}

// APIKeyVerifier authenticates "aai-..."-prefixed bearer secrets against
// runtime/store/relational by secure hash, per spec §4.7: "API keys
// (prefix aai-) — looked up by secure hash".
type APIKeyVerifier struct {
	store apiKeyStore
}

// NewAPIKeyVerifier builds a Verifier backed by store.
func NewAPIKeyVerifier(store apiKeyStore) *APIKeyVerifier {
	return &APIKeyVerifier{store: store}
}

func (v *APIKeyVerifier) Verify(ctx context.Context, authorizationHeader string) (Principal, error) {
	token, err := bearerToken(authorizationHeader)
	if err != nil {
		return Principal{}, err
	}

	hashed := domain.SecureHash(token)
	key, err := v.store.LookupAPIKey(ctx, hashed)
	if err != nil {
		return Principal{}, err
	}

	_ = v.store.TouchAPIKey(ctx, hashed, time.Now())
	return Principal{TenantUID: key.TenantUID, Subject: key.CreatedBy}, nil
}

// GenerateAPIKey mints a fresh opaque secret and the APIKey record to
// persist for it. The plaintext secret is returned exactly once; only its
// secure hash and partial are ever stored.
func GenerateAPIKey(tenantUID int64, createdBy string) (plaintext string, record domain.APIKey, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.APIKey{}, apierror.Wrap(apierror.KindInternal, "generate api key", err)
	}
	plaintext = apiKeyPrefix + hex.EncodeToString(raw)

	partial := plaintext[len(apiKeyPrefix):]
	if len(partial) > 4 {
		partial = partial[:4]
	}

	record = domain.APIKey{
		TenantUID: tenantUID,
		HashedKey: domain.SecureHash(plaintext),
		Partial:   partial,
		CreatedBy: createdBy,
	}
	return plaintext, record, nil
}
