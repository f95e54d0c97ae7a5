package dedup

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kailas-cloud/dedup/internal/domain"
)

func TestDelete_AllTargets(t *testing.T) {
	a := &fakeIndex{name: "idxA"}
	b := &fakeIndex{name: "idxB"}
	svc := New(newFakeRegistry(t, a, b), Config{}, nil)

	if err := svc.Delete(context.Background(), []string{"idxA//@//idxB"}, "7"); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.deleted, []string{"7"}) || !slices.Equal(b.deleted, []string{"7"}) {
		t.Errorf("deleted a=%v b=%v", a.deleted, b.deleted)
	}
}

func TestDelete_ResolvesBeforeDeleting(t *testing.T) {
	reg := newFakeRegistry(t, &fakeIndex{name: "idxA"})
	svc := New(reg, Config{}, nil)
	ctx := context.Background()

	if err := svc.Delete(ctx, []string{"idxA", "nope"}, "7"); !isNotFound("index")(err) {
		t.Errorf("expected index not found, got %v", err)
	}
	if err := svc.Delete(ctx, []string{" "}, "7"); !isMissing("database")(err) {
		t.Errorf("expected missing database, got %v", err)
	}
	if err := svc.Delete(ctx, []string{"idxA"}, ""); !isMissing("id")(err) {
		t.Errorf("expected missing id, got %v", err)
	}
	if reg.engineCalls() != 0 {
		t.Errorf("engine called %d times", reg.engineCalls())
	}
}

func TestResetAndOptimize(t *testing.T) {
	a := &fakeIndex{name: "idxA"}
	svc := New(newFakeRegistry(t, a), Config{}, nil)
	ctx := context.Background()

	if err := svc.Reset(ctx, "idxA"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Optimize(ctx, "idxA"); err != nil {
		t.Fatal(err)
	}
	if a.resets != 1 || a.opts != 1 {
		t.Errorf("resets=%d opts=%d", a.resets, a.opts)
	}
	if err := svc.Reset(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("reset unknown: %v", err)
	}
	if err := svc.Optimize(ctx, ""); !isMissing("database")(err) {
		t.Errorf("optimize blank: %v", err)
	}
}

func TestTest(t *testing.T) {
	good := &fakeIndex{name: "idxA", ok: true}
	bad := &fakeIndex{name: "idxB"}
	svc := New(newFakeRegistry(t, good, bad), Config{}, nil)
	ctx := context.Background()

	if ok, err := svc.Test(ctx, "idxA", "demo"); err != nil || !ok {
		t.Errorf("Test(idxA) = %v, %v", ok, err)
	}
	if ok, err := svc.Test(ctx, "idxB", "demo"); err != nil || ok {
		t.Errorf("Test(idxB) = %v, %v", ok, err)
	}
	if _, err := svc.Test(ctx, "idxA", ""); !isMissing("schema")(err) {
		t.Errorf("missing schema: %v", err)
	}
	if _, err := svc.Test(ctx, "idxA", "nope"); !isNotFound("schema")(err) {
		t.Errorf("unknown schema: %v", err)
	}
}
