package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"officehours/internal/queue/model"
	"officehours/internal/queue/repository"
	"officehours/internal/testutil"
)

func move(courseID, requestID string, from, to model.Status, op repository.OrderOp) repository.Transition {
	return repository.Transition{CourseID: courseID, RequestID: requestID, Expected: from, Next: to, Order: op}
}

func TestStatusApply(t *testing.T) {
	redisCache, mr := testutil.NewRedis(t)
	repo := repository.NewStatusRepository(redisCache, time.Second)
	ctx := context.Background()

	got, err := repo.Get(ctx, "cs101", "r1")
	testutil.MustNoError(t, err)
	if got != model.StatusCreated {
		t.Fatalf("absent status should read as CREATED, got %s", got)
	}

	result, err := repo.Apply(ctx, move("cs101", "r1", model.StatusCreated, model.StatusPending, repository.OrderAppend))
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, result.Statuses, map[string]model.Status{"r1": model.StatusPending})
	testutil.AssertEqual(t, result.Order, []string{"r1"})
	testutil.AssertTrue(t, result.OrderChanged, "append should change order")

	if _, err := repo.Apply(ctx, move("cs101", "r1", model.StatusCreated, model.StatusPending, repository.OrderAppend)); !errors.Is(err, repository.ErrStatusConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	result, err = repo.Apply(ctx, move("cs101", "r1", model.StatusPending, model.StatusClosed, repository.OrderRemove))
	testutil.MustNoError(t, err)
	if len(result.Statuses) != 0 || len(result.Order) != 0 {
		t.Fatalf("CLOSED must delete the entry and leave order, got %+v", result)
	}
	if mr.Exists("queue:status:{cs101}") {
		t.Fatalf("expected empty hash to disappear")
	}
}

func TestStatusApplyConflictLeavesOrderAlone(t *testing.T) {
	redisCache, _ := testutil.NewRedis(t)
	repo := repository.NewStatusRepository(redisCache, time.Second)
	orders := repository.NewOrderRepository(redisCache, time.Second)
	ctx := context.Background()

	_, err := repo.Apply(ctx, move("cs101", "r1", model.StatusCreated, model.StatusPending, repository.OrderAppend))
	testutil.MustNoError(t, err)
	_, err = repo.Apply(ctx, move("cs101", "r1", model.StatusPending, model.StatusServing, repository.OrderRemove))
	testutil.MustNoError(t, err)

	// a stale writer still believes r1 is LEFT
	_, err = repo.Apply(ctx, move("cs101", "r1", model.StatusLeft, model.StatusPending, repository.OrderAppend))
	if !errors.Is(err, repository.ErrStatusConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	order, err := orders.List(ctx, "cs101")
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, order, []string{})
}

func TestStatusApplyOrderOpsAreIdempotent(t *testing.T) {
	redisCache, _ := testutil.NewRedis(t)
	repo := repository.NewStatusRepository(redisCache, time.Second)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := repo.Apply(ctx, move("cs101", id, model.StatusCreated, model.StatusPending, repository.OrderAppend))
		testutil.MustNoError(t, err)
	}

	result, err := repo.Apply(ctx, move("cs101", "r2", model.StatusPending, model.StatusPending, repository.OrderAppend))
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, result.Order, []string{"r1", "r2", "r3"})
	testutil.AssertTrue(t, !result.OrderChanged, "present id must not be appended twice")

	result, err = repo.Apply(ctx, move("cs101", "r2", model.StatusPending, model.StatusLeft, repository.OrderRemove))
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, result.Order, []string{"r1", "r3"})
	testutil.AssertTrue(t, result.OrderChanged, "r2 should have been removed")

	result, err = repo.Apply(ctx, move("cs101", "r2", model.StatusLeft, model.StatusLeft, repository.OrderRemove))
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, result.Order, []string{"r1", "r3"})
	testutil.AssertTrue(t, !result.OrderChanged, "absent id is a no-op")

	result, err = repo.Apply(ctx, move("cs101", "r1", model.StatusPending, model.StatusInReview, repository.OrderKeep))
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, result.Order, []string{"r1", "r3"})
	testutil.AssertEqual(t, result.Statuses["r1"], model.StatusInReview)
}

func TestStatusAllIsPerCourse(t *testing.T) {
	redisCache, _ := testutil.NewRedis(t)
	repo := repository.NewStatusRepository(redisCache, time.Second)
	ctx := context.Background()

	_, err := repo.Apply(ctx, move("a", "r1", model.StatusCreated, model.StatusPending, repository.OrderAppend))
	testutil.MustNoError(t, err)
	_, err = repo.Apply(ctx, move("b", "r2", model.StatusCreated, model.StatusPending, repository.OrderAppend))
	testutil.MustNoError(t, err)

	all, err := repo.All(ctx, "a")
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, all, map[string]model.Status{"r1": model.StatusPending})
}

func TestStatusStoreErrorsSurface(t *testing.T) {
	redisCache, mr := testutil.NewRedis(t)
	repo := repository.NewStatusRepository(redisCache, 50*time.Millisecond)
	mr.Close()

	if _, err := repo.Get(context.Background(), "cs101", "r1"); err == nil {
		t.Fatalf("expected error from a stopped redis")
	}
}

func TestOrderListEmpty(t *testing.T) {
	redisCache, _ := testutil.NewRedis(t)
	repo := repository.NewOrderRepository(redisCache, time.Second)

	empty, err := repo.List(context.Background(), "cs101")
	testutil.MustNoError(t, err)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil order, got %#v", empty)
	}
}
