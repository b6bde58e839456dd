package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/storefront-auth-api/internal/domain"
)

// IdentityRepo manages auth identities and their provider links.
// Lookup by (provider, entity_id) goes through the provider_entity-index GSI
// on the denormalized "<provider>#<entity_id>" attribute.
type IdentityRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewIdentityRepo(client *dynamodb.Client, tableName string) *IdentityRepo {
	return &IdentityRepo{client: client, tableName: tableName}
}

func providerEntity(provider, entityID string) string {
	return provider + "#" + entityID
}

// Create writes the identity, filling ProviderEntity from the first provider
// identity so the GSI can find it.
func (r *IdentityRepo) Create(ctx context.Context, id *domain.AuthIdentity) error {
	if len(id.ProviderIdentities) > 0 {
		pi := id.ProviderIdentities[0]
		id.ProviderEntity = providerEntity(pi.Provider, pi.EntityID)
	}
	item, err := attributevalue.MarshalMap(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// FindProviderIdentity returns the identity holding the given
// (provider, entity_id) link, or domain.ErrNotFound.
func (r *IdentityRepo) FindProviderIdentity(ctx context.Context, provider, entityID string) (*domain.AuthIdentity, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("provider_entity-index"),
		KeyConditionExpression: aws.String("provider_entity = :pe"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pe": &types.AttributeValueMemberS{Value: providerEntity(provider, entityID)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("identity %s/%s: %w", provider, entityID, domain.ErrNotFound)
	}
	var id domain.AuthIdentity
	if err := attributevalue.UnmarshalMap(out.Items[0], &id); err != nil {
		return nil, err
	}
	return &id, nil
}
