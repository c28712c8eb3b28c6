package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"officehours/internal/queue/model"
	"officehours/internal/queue/repository"
	"officehours/internal/testutil"
)

func TestMembershipRoleOf(t *testing.T) {
	database := testutil.NewSQLite(t)
	redisCache, mr := testutil.NewRedis(t)
	repo := repository.NewMembershipRepository(database, redisCache, time.Second)
	ctx := context.Background()

	_, ok, err := repo.RoleOf(ctx, "cs101", "alice")
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, !ok, "non-member should have no role")
	if v, _ := mr.Get("queue:member:cs101:alice"); v != "$NULL$" {
		t.Fatalf("expected negative cache entry, got %q", v)
	}

	testutil.MustNoError(t, repo.SetRole(ctx, nil, "cs101", "alice", model.RoleStudent))
	role, ok, err := repo.RoleOf(ctx, "cs101", "alice")
	testutil.MustNoError(t, err)
	if !ok || role != model.RoleStudent {
		t.Fatalf("unexpected role %q %v", role, ok)
	}

	testutil.MustNoError(t, repo.SetRole(ctx, nil, "cs101", "alice", model.RoleHelper))
	role, _, err = repo.RoleOf(ctx, "cs101", "alice")
	testutil.MustNoError(t, err)
	if role != model.RoleHelper {
		t.Fatalf("expected promotion to be visible, got %q", role)
	}
}

func TestMembershipAddIfAbsentKeepsExistingRole(t *testing.T) {
	database := testutil.NewSQLite(t)
	repo := repository.NewMembershipRepository(database, nil, time.Second)
	ctx := context.Background()

	testutil.MustNoError(t, repo.SetRole(ctx, nil, "cs101", "helen", model.RoleHelper))
	role, err := repo.AddIfAbsent(ctx, "cs101", "helen", model.RoleStudent)
	testutil.MustNoError(t, err)
	if role != model.RoleHelper {
		t.Fatalf("join must not demote, got %q", role)
	}

	role, err = repo.AddIfAbsent(ctx, "cs101", "sam", model.RoleStudent)
	testutil.MustNoError(t, err)
	if role != model.RoleStudent {
		t.Fatalf("unexpected role %q", role)
	}
}

func TestMembershipListByUserIncludesCourseName(t *testing.T) {
	database := testutil.NewSQLite(t)
	members := repository.NewMembershipRepository(database, nil, time.Second)
	courses := repository.NewCourseRepository(database, time.Second)
	ctx := context.Background()
	now := time.Now()

	created, err := courses.Upsert(ctx, nil, &model.Course{CourseID: "cs101", Name: "Intro", CreatedBy: "ada", CreatedAt: now, UpdatedAt: now})
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, created, "course should be created")
	testutil.MustNoError(t, members.SetRole(ctx, nil, "cs101", "ada", model.RoleAdmin))
	testutil.MustNoError(t, members.SetRole(ctx, nil, "cs202", "ada", model.RoleStudent))

	list, err := members.ListByUser(ctx, "ada")
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, list, []model.Membership{
		{CourseID: "cs101", UserID: "ada", Role: model.RoleAdmin, CourseName: "Intro"},
		{CourseID: "cs202", UserID: "ada", Role: model.RoleStudent},
	})
}

func TestCourseUpsert(t *testing.T) {
	database := testutil.NewSQLite(t)
	repo := repository.NewCourseRepository(database, time.Second)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	if _, err := repo.Get(ctx, nil, "cs101"); !errors.Is(err, repository.ErrCourseNotFound) {
		t.Fatalf("expected course not found, got %v", err)
	}

	course := &model.Course{CourseID: "cs101", Name: "Intro", Location: "Room 1", Schedule: json.RawMessage(`{"mon":"10-12"}`), CreatedBy: "ada", CreatedAt: now, UpdatedAt: now}
	_, err := repo.Upsert(ctx, nil, course)
	testutil.MustNoError(t, err)

	updated := &model.Course{CourseID: "cs101", Name: "Intro to CS", CreatedBy: "mallory", UpdatedAt: now.Add(time.Hour)}
	created, err := repo.Upsert(ctx, nil, updated)
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, !created, "second upsert should update")

	got, err := repo.Get(ctx, nil, "cs101")
	testutil.MustNoError(t, err)
	if got.Name != "Intro to CS" || got.CreatedBy != "ada" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected course: %+v", got)
	}
	if string(got.Resources) != "[]" {
		t.Fatalf("unexpected resources default: %s", got.Resources)
	}
}

func TestEventInsertIgnoresDuplicates(t *testing.T) {
	database := testutil.NewSQLite(t)
	repo := repository.NewEventRepository(database, time.Second)
	ctx := context.Background()
	event := &model.LifecycleEvent{
		EventID: "e1", CourseID: "cs101", RequestID: "r1", ActorID: "alice", ActorRole: model.RoleStudent,
		From: model.StatusCreated, To: model.StatusPending, At: time.UnixMilli(1_700_000_000_000).UTC(),
	}

	inserted, err := repo.Insert(ctx, event)
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, inserted, "first insert should apply")
	inserted, err = repo.Insert(ctx, event)
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, !inserted, "duplicate should be ignored")

	events, err := repo.ListByRequest(ctx, "cs101", "r1")
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, events, []model.LifecycleEvent{*event})
}
