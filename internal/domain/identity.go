package domain

import "time"

// Provider names for provider identities. The names are part of the token
// claims and of the identity lookup keys, so they must stay stable.
const (
	ProviderEmailPass = "emailpass"
	ProviderOTP       = "otp"
)

// AuthIdentity links a customer to one or more authentication methods.
// ProviderEntity is a denormalized "<provider>#<entity_id>" attribute kept for
// the provider_entity-index GSI; it is derived from the first provider identity.
type AuthIdentity struct {
	IdentityID         string             `json:"id" dynamodbav:"identity_id"`
	AppMetadata        map[string]string  `json:"app_metadata,omitempty" dynamodbav:"app_metadata"`
	ProviderIdentities []ProviderIdentity `json:"provider_identities" dynamodbav:"provider_identities"`
	ProviderEntity     string             `json:"-" dynamodbav:"provider_entity"`
	CreatedAt          time.Time          `json:"created_at" dynamodbav:"created_at"`
}

// ProviderIdentity is one (provider, external-id) pair on an auth identity.
// For emailpass identities ProviderMetadata carries the password hash.
type ProviderIdentity struct {
	ProviderIdentityID string            `json:"id" dynamodbav:"provider_identity_id"`
	Provider           string            `json:"provider" dynamodbav:"provider"`
	EntityID           string            `json:"entity_id" dynamodbav:"entity_id"`
	ProviderMetadata   map[string]string `json:"-" dynamodbav:"provider_metadata"`
}
