package service_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"officehours/internal/queue/model"
	"officehours/internal/testutil"
	pkgerrors "officehours/pkg/errors"
)

func TestScenarioSubmitEntersOrder(t *testing.T) {
	h := newHarness(t)
	h.submit(t, alice, "x")

	outcome := h.move(t, alice, "x", model.StatusPending)

	testutil.AssertEqual(t, h.order(t), []string{"x"})
	testutil.AssertEqual(t, outcome.Statuses, map[string]model.Status{"x": model.StatusPending})
	if !outcome.OrderChanged || outcome.Active == nil || outcome.Active.RequestID != "x" || outcome.Active.UserID != "alice" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if h.announcer.last(t) != outcome {
		t.Fatalf("expected outcome to be announced")
	}
}

func TestScenarioClaimTakesHeadOfOrder(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")
	h.enqueue(t, bob, "y")

	outcome, err := h.lifecycle.ClaimNext(context.Background(), course, helen)
	testutil.MustNoError(t, err)

	if outcome.RequestID != "x" || outcome.To != model.StatusInReview {
		t.Fatalf("expected x to be claimed, got %+v", outcome)
	}
	if outcome.OrderChanged {
		t.Fatalf("claim must not change order")
	}
	testutil.AssertEqual(t, h.order(t), []string{"x", "y"})
	testutil.AssertEqual(t, h.statuses(t)["x"], model.StatusInReview)
}

func TestScenarioHelperClosesServedRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enqueue(t, alice, "x")
	h.move(t, helen, "x", model.StatusServing)

	outcome := h.move(t, hank, "x", model.StatusClosed)

	if _, ok := outcome.Statuses["x"]; ok {
		t.Fatalf("closed request must leave the status map")
	}
	testutil.AssertEqual(t, h.order(t), []string{})
	status, err := h.stores.Statuses.Get(ctx, course, "x")
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, status, model.StatusCreated)

	req, err := h.stores.Requests.Get(ctx, course, "x")
	testutil.MustNoError(t, err)
	if req.HelperID != "helen" || !req.IsClosed() {
		t.Fatalf("expected helen to stay stamped and request closed: %+v", req)
	}
	if outcome.Active == nil || outcome.Active.RequestID != "" {
		t.Fatalf("expected active request to clear, got %+v", outcome.Active)
	}
}

func TestCloseByNonCreatorStampsHelperWhenUnset(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")
	h.move(t, hank, "x", model.StatusClosed)

	req, err := h.stores.Requests.Get(context.Background(), course, "x")
	testutil.MustNoError(t, err)
	if req.HelperID != "hank" || req.HelperName != "Hank" {
		t.Fatalf("expected hank to be stamped, got %+v", req)
	}
}

func TestScenarioNeedsUpdateKeepsSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enqueue(t, alice, "x")
	h.enqueue(t, bob, "y")
	h.move(t, helen, "x", model.StatusNeedsUpdate)

	outcome, err := h.lifecycle.ClaimNext(ctx, course, helen)
	testutil.MustNoError(t, err)
	if outcome.RequestID != "y" {
		t.Fatalf("NEEDS_UPDATE must be skipped by claim, got %s", outcome.RequestID)
	}

	updated := h.move(t, alice, "x", model.StatusUpdated)
	if updated.OrderChanged {
		t.Fatalf("UPDATED must not change order")
	}
	testutil.AssertEqual(t, h.order(t), []string{"x", "y"})
	testutil.AssertEqual(t, h.statuses(t)["x"], model.StatusUpdated)

	outcome, err = h.lifecycle.ClaimNext(ctx, course, hank)
	testutil.MustNoError(t, err)
	if outcome.RequestID != "x" {
		t.Fatalf("UPDATED request should be claimable, got %s", outcome.RequestID)
	}
}

func TestScenarioStudentLeaves(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")

	outcome := h.move(t, alice, "x", model.StatusLeft)

	testutil.AssertEqual(t, h.order(t), []string{})
	if !outcome.OrderChanged || outcome.Active == nil || outcome.Active.RequestID != "" || outcome.Active.UserID != "alice" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	testutil.AssertEqual(t, h.statuses(t)["x"], model.StatusLeft)
}

func TestTransitionValidationOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enqueue(t, alice, "x")

	tests := []struct {
		name      string
		requestID string
		actor     string
		target    string
		code      pkgerrors.ErrorCode
	}{
		{"missing request beats everything", "nope", "mallory", "BOGUS", pkgerrors.RequestNotFound},
		{"non-member", "x", "mallory", "BOGUS", pkgerrors.NotCourseMember},
		{"unknown status", "x", "alice", "BOGUS", pkgerrors.InvalidStatus},
		{"not permitted", "x", "bob", string(model.StatusLeft), pkgerrors.TransitionForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := alice
			actor.UserID = tt.actor
			_, err := h.lifecycle.RequestTransition(ctx, course, tt.requestID, actor, tt.target)
			testutil.AssertCode(t, err, tt.code)
		})
	}
}

func TestStudentCannotActAsHelper(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")

	for _, target := range []model.Status{model.StatusServing, model.StatusResolved, model.StatusInReview} {
		t.Run(target.String(), func(t *testing.T) {
			_, err := h.lifecycle.RequestTransition(context.Background(), course, "x", alice, string(target))
			testutil.AssertCode(t, err, pkgerrors.TransitionForbidden)
		})
	}

	h.move(t, helen, "x", model.StatusInReview)
	_, err := h.lifecycle.RequestTransition(context.Background(), course, "x", alice, string(model.StatusInReview))
	testutil.AssertCode(t, err, pkgerrors.TransitionForbidden)

	_, err = h.lifecycle.ClaimNext(context.Background(), course, alice)
	testutil.AssertCode(t, err, pkgerrors.Forbidden)
}

func TestRepeatedTransitionIsNoop(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")

	outcome := h.move(t, alice, "x", model.StatusPending)
	if !outcome.Noop || outcome.OrderChanged {
		t.Fatalf("expected no-op, got %+v", outcome)
	}
	testutil.AssertEqual(t, outcome.Statuses, map[string]model.Status{"x": model.StatusPending})
	testutil.AssertEqual(t, h.order(t), []string{"x"})
	if h.announcer.last(t) != outcome {
		t.Fatalf("no-op must still announce the status map")
	}
}

func TestClosedRequestCannotReturn(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")
	h.move(t, alice, "x", model.StatusClosed)

	_, err := h.lifecycle.RequestTransition(context.Background(), course, "x", alice, string(model.StatusPending))
	testutil.AssertCode(t, err, pkgerrors.TransitionForbidden)

	again := h.move(t, alice, "x", model.StatusClosed)
	if !again.Noop {
		t.Fatalf("re-closing should be a no-op")
	}
	testutil.AssertEqual(t, h.order(t), []string{})
}

func TestLeftRequestCanRejoinAtTail(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")
	h.enqueue(t, bob, "y")
	h.move(t, alice, "x", model.StatusLeft)

	h.move(t, alice, "x", model.StatusPending)
	testutil.AssertEqual(t, h.order(t), []string{"y", "x"})
}

func TestClaimWithEmptyOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.lifecycle.ClaimNext(context.Background(), course, helen)
	testutil.AssertCode(t, err, pkgerrors.NoEligibleRequest)
}

func TestConcurrentClaimsNeverShareARequest(t *testing.T) {
	h := newHarness(t)
	ids := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
	for i, id := range ids {
		if i%2 == 0 {
			h.enqueue(t, alice, id)
		} else {
			h.enqueue(t, bob, id)
		}
	}

	helpers := 10
	results := make(chan string, helpers)
	var wg sync.WaitGroup
	for i := 0; i < helpers; i++ {
		actor := helen
		if i%2 == 1 {
			actor = hank
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := h.lifecycle.ClaimNext(context.Background(), course, actor)
			if err != nil {
				if !pkgerrors.Is(err, pkgerrors.NoEligibleRequest) {
					t.Errorf("unexpected claim error: %v", err)
				}
				return
			}
			results <- outcome.RequestID
		}()
	}
	wg.Wait()
	close(results)

	claimed := map[string]int{}
	for id := range results {
		claimed[id]++
	}
	if len(claimed) != len(ids) {
		t.Fatalf("expected every request claimed once, got %v", claimed)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("request %s claimed %d times", id, n)
		}
	}
	h.assertOrderConsistent(t)
}

func TestConcurrentTransitionsConflict(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, target := range []model.Status{model.StatusServing, model.StatusNeedsUpdate} {
		wg.Add(1)
		go func(target model.Status) {
			defer wg.Done()
			_, err := h.lifecycle.RequestTransition(context.Background(), course, "x", helen, string(target))
			errs <- err
		}(target)
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err == nil {
			continue
		}
		failures++
		code := pkgerrors.GetCode(err)
		if code != pkgerrors.StatusConflict && code != pkgerrors.TransitionForbidden {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if failures > 1 {
		t.Fatalf("at least one transition should apply")
	}
	h.assertOrderConsistent(t)
}

func TestRandomWalkKeepsOrderConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		h.submit(t, alice, id)
	}

	actors := []struct {
		actor  string
		helper bool
	}{{"alice", false}, {"helen", true}}
	for step := 0; step < 200; step++ {
		id := ids[rng.Intn(len(ids))]
		target := model.AllStatuses[1+rng.Intn(len(model.AllStatuses)-1)]
		who := actors[rng.Intn(len(actors))]
		actor := alice
		if who.helper {
			actor = helen
		}
		_, err := h.lifecycle.RequestTransition(ctx, course, id, actor, string(target))
		if err != nil && !pkgerrors.Is(err, pkgerrors.TransitionForbidden) {
			t.Fatalf("step %d: unexpected error: %v", step, err)
		}
		h.assertOrderConsistent(t)
	}
}

func TestStoreOutageIsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, alice, "x")
	h.redis.Close()

	_, err := h.lifecycle.RequestTransition(context.Background(), course, "x", helen, string(model.StatusServing))
	testutil.AssertCode(t, err, pkgerrors.StoreUnavailable)

	_, err = h.lifecycle.ClaimNext(context.Background(), course, helen)
	testutil.AssertCode(t, err, pkgerrors.StoreUnavailable)
}
