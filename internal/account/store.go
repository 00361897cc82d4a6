// Package account persists CloudAccount records.
package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/jun/gophgallery/internal/model"
)

// UserIndex is the GSI on user_id used to list a user's accounts.
const UserIndex = "user_id-index"

// ErrNotFound is returned when no account record exists for an id.
var ErrNotFound = errors.New("account not found")

// namespace scopes account ids derived by ID.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://gophgallery.app/cloud-accounts"))

// ID derives the account id for a (user, provider, provider account) tuple.
// Reconnecting the same provider account therefore overwrites the same record.
func ID(userID string, p model.Provider, providerAccountID string) string {
	return uuid.NewSHA1(namespace, []byte(userID+"|"+string(p)+"|"+providerAccountID)).String()
}

// Store reads and writes CloudAccount records. Token fields are stored as given;
// callers encrypt them first.
type Store interface {
	Get(ctx context.Context, id string) (*model.CloudAccount, error)
	ListByUser(ctx context.Context, userID string) ([]model.CloudAccount, error)
	// Upsert assigns acc.ID from its tuple and writes it, keeping CreatedAt of an
	// existing record.
	Upsert(ctx context.Context, acc *model.CloudAccount) error
	// UpdateTokens replaces the credential fields. An empty refresh keeps the stored one;
	// a nil expiresAt clears the expiry.
	UpdateTokens(ctx context.Context, id, access, refresh string, expiresAt *time.Time) error
	Delete(ctx context.Context, id string) error
}

// DynamoClient is the subset of *dynamodb.Client methods used by DynamoStore.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements Store on a DynamoDB table keyed by id.
// If client is nil, it keeps records in memory (for tests and DEV_MODE).
type DynamoStore struct {
	client    DynamoClient
	tableName string

	// In-memory fallback
	accounts map[string]model.CloudAccount
	mu       sync.RWMutex
}

// NewDynamoStore creates a new DynamoStore.
func NewDynamoStore(client DynamoClient, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		accounts:  make(map[string]model.CloudAccount),
	}
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*model.CloudAccount, error) {
	if s.client == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		acc, ok := s.accounts[id]
		if !ok {
			return nil, ErrNotFound
		}
		return &acc, nil
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var acc model.CloudAccount
	if err := attributevalue.UnmarshalMap(out.Item, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &acc, nil
}

func (s *DynamoStore) ListByUser(ctx context.Context, userID string) ([]model.CloudAccount, error) {
	var accounts []model.CloudAccount
	if s.client == nil {
		s.mu.RLock()
		for _, acc := range s.accounts {
			if acc.UserID == userID {
				accounts = append(accounts, acc)
			}
		}
		s.mu.RUnlock()
	} else {
		p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(UserIndex),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
		})
		for p.HasMorePages() {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to query accounts: %w", err)
			}
			var page []model.CloudAccount
			if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
				return nil, fmt.Errorf("failed to unmarshal accounts: %w", err)
			}
			accounts = append(accounts, page...)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

func (s *DynamoStore) Upsert(ctx context.Context, acc *model.CloudAccount) error {
	if acc.UserID == "" || !acc.Provider.Valid() || acc.ProviderAccountID == "" {
		return fmt.Errorf("account requires user, provider and provider account id")
	}
	acc.ID = ID(acc.UserID, acc.Provider, acc.ProviderAccountID)
	now := time.Now().UTC()
	acc.UpdatedAt = now
	acc.CreatedAt = now
	if existing, err := s.Get(ctx, acc.ID); err == nil {
		acc.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if s.client == nil {
		s.mu.Lock()
		s.accounts[acc.ID] = *acc
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save account to DynamoDB: %w", err)
	}
	return nil
}

func (s *DynamoStore) UpdateTokens(ctx context.Context, id, access, refresh string, expiresAt *time.Time) error {
	now := time.Now().UTC()
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		acc, ok := s.accounts[id]
		if !ok {
			return ErrNotFound
		}
		acc.AccessToken = access
		if refresh != "" {
			acc.RefreshToken = refresh
		}
		acc.ExpiresAt = expiresAt
		acc.UpdatedAt = now
		s.accounts[id] = acc
		return nil
	}

	nowAV, err := attributevalue.Marshal(now)
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}
	set := "SET access_token = :access, updated_at = :now"
	values := map[string]types.AttributeValue{
		":access": &types.AttributeValueMemberS{Value: access},
		":now":    nowAV,
	}
	if refresh != "" {
		set += ", refresh_token = :refresh"
		values[":refresh"] = &types.AttributeValueMemberS{Value: refresh}
	}
	update := set
	if expiresAt != nil {
		expAV, err := attributevalue.Marshal(expiresAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to marshal expiry: %w", err)
		}
		update += ", expires_at = :exp"
		values[":exp"] = expAV
	} else {
		update += " REMOVE expires_at"
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(id),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update account tokens: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	if s.client == nil {
		s.mu.Lock()
		delete(s.accounts, id)
		s.mu.Unlock()
		return nil
	}

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
