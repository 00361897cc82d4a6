package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/gophgallery/internal/model"
)

func newAccount(user, providerAccountID string) *model.CloudAccount {
	return &model.CloudAccount{
		UserID:            user,
		Provider:          model.ProviderDropbox,
		ProviderAccountID: providerAccountID,
		Email:             "me@example.com",
		AccessToken:       "enc-access",
		RefreshToken:      "enc-refresh",
	}
}

func TestID_Deterministic(t *testing.T) {
	a := ID("user1", model.ProviderGoogle, "g-1")
	b := ID("user1", model.ProviderGoogle, "g-1")
	if a != b {
		t.Fatalf("expected stable id, got %s and %s", a, b)
	}
	for _, other := range []string{
		ID("user2", model.ProviderGoogle, "g-1"),
		ID("user1", model.ProviderDropbox, "g-1"),
		ID("user1", model.ProviderGoogle, "g-2"),
	} {
		if other == a {
			t.Errorf("distinct tuples must not share an id")
		}
	}
}

func TestDynamoStore_Upsert_OneRecordPerTuple(t *testing.T) {
	s := NewDynamoStore(nil, "")
	ctx := context.Background()

	first := newAccount("user1", "dbid:1")
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	created := first.CreatedAt

	time.Sleep(5 * time.Millisecond)
	again := newAccount("user1", "dbid:1")
	again.AccessToken = "enc-access-2"
	if err := s.Upsert(ctx, again); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	if again.ID != first.ID {
		t.Fatalf("reconnect changed id: %s vs %s", again.ID, first.ID)
	}
	list, _ := s.ListByUser(ctx, "user1")
	if len(list) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(list))
	}
	if list[0].AccessToken != "enc-access-2" {
		t.Errorf("expected latest token, got %q", list[0].AccessToken)
	}
	if !list[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on reconnect")
	}
}

func TestDynamoStore_Upsert_RequiresTuple(t *testing.T) {
	s := NewDynamoStore(nil, "")
	err := s.Upsert(context.Background(), &model.CloudAccount{UserID: "u", Provider: "ftp", ProviderAccountID: "x"})
	if err == nil {
		t.Error("expected invalid provider to be rejected")
	}
}

func TestDynamoStore_UpdateTokens(t *testing.T) {
	s := NewDynamoStore(nil, "")
	ctx := context.Background()
	acc := newAccount("user1", "dbid:1")
	s.Upsert(ctx, acc)

	exp := time.Now().Add(time.Hour)
	if err := s.UpdateTokens(ctx, acc.ID, "new-access", "", &exp); err != nil {
		t.Fatalf("UpdateTokens failed: %v", err)
	}
	got, _ := s.Get(ctx, acc.ID)
	if got.AccessToken != "new-access" || got.RefreshToken != "enc-refresh" {
		t.Errorf("unexpected tokens %q / %q", got.AccessToken, got.RefreshToken)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(exp) {
		t.Errorf("expiry not stored")
	}

	if err := s.UpdateTokens(ctx, "missing", "a", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDynamoStore_Delete(t *testing.T) {
	s := NewDynamoStore(nil, "")
	ctx := context.Background()
	acc := newAccount("user1", "dbid:1")
	s.Upsert(ctx, acc)

	if err := s.Delete(ctx, acc.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, acc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

type fakeDynamo struct {
	updates []*dynamodb.UpdateItemInput
	failCCF bool
}

func (f *fakeDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if f.failCCF {
		return nil, &types.ConditionalCheckFailedException{}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func TestDynamoStore_UpdateTokens_Expressions(t *testing.T) {
	f := &fakeDynamo{}
	s := NewDynamoStore(f, "CloudAccounts")
	ctx := context.Background()

	if err := s.UpdateTokens(ctx, "acc1", "a", "r", nil); err != nil {
		t.Fatalf("UpdateTokens failed: %v", err)
	}
	expr := *f.updates[0].UpdateExpression
	if !strings.Contains(expr, "refresh_token = :refresh") || !strings.Contains(expr, "REMOVE expires_at") {
		t.Errorf("unexpected update expression %q", expr)
	}

	f.failCCF = true
	if err := s.UpdateTokens(ctx, "acc1", "a", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on failed condition, got %v", err)
	}
}
