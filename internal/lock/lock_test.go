package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestMockLocker_AcquireAndRelease(t *testing.T) {
	m := NewMockLocker()
	ctx := context.Background()

	l, err := m.Acquire(ctx, "refresh#acc1", "worker1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.Key != "refresh#acc1" || l.Owner != "worker1" {
		t.Errorf("Lease mismatch: got %+v", l)
	}

	if err := m.Release(ctx, "refresh#acc1", "worker1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	status, _ := m.Status(ctx, "refresh#acc1")
	if status != nil {
		t.Error("Expected nil lease status after release")
	}
}

func TestMockLocker_DoubleAcquire_SameOwner(t *testing.T) {
	m := NewMockLocker()
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "k", "worker1"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if _, err := m.Acquire(ctx, "k", "worker1"); err != nil {
		t.Errorf("Same owner should be able to re-acquire: %v", err)
	}
}

func TestMockLocker_DoubleAcquire_DifferentOwner(t *testing.T) {
	m := NewMockLocker()
	ctx := context.Background()

	m.Acquire(ctx, "k", "worker1")
	_, err := m.Acquire(ctx, "k", "worker2")
	if !errors.Is(err, ErrHeld) {
		t.Errorf("Expected ErrHeld, got %v", err)
	}
}

func TestMockLocker_ExpiredLease(t *testing.T) {
	m := NewMockLocker()
	m.ttlDuration = -1 * time.Second
	ctx := context.Background()

	m.Acquire(ctx, "k", "worker1")
	if _, err := m.Acquire(ctx, "k", "worker2"); err != nil {
		t.Errorf("Should acquire expired lease: %v", err)
	}
}

func TestMockLocker_Release_WrongOwner(t *testing.T) {
	m := NewMockLocker()
	ctx := context.Background()

	m.Acquire(ctx, "k", "worker1")
	if err := m.Release(ctx, "k", "worker2"); err == nil {
		t.Error("Expected error when releasing a lease owned by another worker")
	}
}

func TestAcquireWait_GivesUpAfterWait(t *testing.T) {
	m := NewMockLocker()
	ctx := context.Background()
	m.Acquire(ctx, "k", "worker1")

	start := time.Now()
	_, ok, err := AcquireWait(ctx, m, "k", "worker2", 50*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected wait to run out")
	}
	if time.Since(start) > time.Second {
		t.Error("AcquireWait overshot its wait")
	}
}

func TestAcquireWait_SucceedsOnceReleased(t *testing.T) {
	m := NewMockLocker()
	ctx := context.Background()
	m.Acquire(ctx, "k", "worker1")

	go func() {
		time.Sleep(30 * time.Millisecond)
		m.Release(ctx, "k", "worker1")
	}()

	lease, ok, err := AcquireWait(ctx, m, "k", "worker2", 2*time.Second, 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("AcquireWait = %v, %v", ok, err)
	}
	if lease.Owner != "worker2" {
		t.Errorf("owner = %q", lease.Owner)
	}
}

type fakeDynamo struct {
	putErr error
	puts   []*dynamodb.PutItemInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestLeaseManager_Acquire_ConditionFailedIsHeld(t *testing.T) {
	f := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{Message: new(string)}}
	m := NewLeaseManager(f, "Leases")

	_, err := m.Acquire(context.Background(), "k", "worker1")
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if len(f.puts) != 1 || *f.puts[0].TableName != "Leases" || f.puts[0].ConditionExpression == nil {
		t.Errorf("unexpected put: %+v", f.puts)
	}
}

func TestLeaseManager_Acquire_Success(t *testing.T) {
	m := NewLeaseManager(&fakeDynamo{}, "Leases")
	l, err := m.Acquire(context.Background(), "k", "worker1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.ExpiresAt <= time.Now().Unix() {
		t.Errorf("lease should expire in the future: %d", l.ExpiresAt)
	}
}

func TestLeaseManager_Status_Empty(t *testing.T) {
	m := NewLeaseManager(&fakeDynamo{}, "Leases")
	l, err := m.Status(context.Background(), "k")
	if err != nil || l != nil {
		t.Errorf("Status = %+v, %v", l, err)
	}
}
