package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"officehours/internal/queue/model"
	"officehours/internal/queue/policy"
	"officehours/internal/queue/repository"
	"officehours/internal/queue/service"
	"officehours/internal/testutil"

	"github.com/alicebob/miniredis/v2"
)

const course = "cs101"

var (
	alice = service.Actor{UserID: "alice", Name: "Alice"}
	bob   = service.Actor{UserID: "bob", Name: "Bob"}
	helen = service.Actor{UserID: "helen", Name: "Helen"}
	hank  = service.Actor{UserID: "hank", Name: "Hank"}
	ada   = service.Actor{UserID: "ada", Name: "Ada"}
)

type recordingAnnouncer struct {
	mu       sync.Mutex
	outcomes []*model.Outcome
}

func (a *recordingAnnouncer) Announce(_ context.Context, outcome *model.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, outcome)
}

func (a *recordingAnnouncer) last(t *testing.T) *model.Outcome {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.outcomes) == 0 {
		t.Fatalf("expected an announced outcome")
	}
	return a.outcomes[len(a.outcomes)-1]
}

type harness struct {
	stores    service.Stores
	lifecycle *service.LifecycleService
	requests  *service.RequestService
	courses   *service.CourseService
	resync    *service.ResyncService
	announcer *recordingAnnouncer
	redis     *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets wrap decorate the stores before the services are built.
func newHarnessWith(t *testing.T, wrap func(service.Stores) service.Stores) *harness {
	t.Helper()
	database := testutil.NewSQLite(t)
	redisCache, mr := testutil.NewRedis(t)
	timeout := time.Second

	stores := service.Stores{
		Requests: repository.NewRequestRepository(database, redisCache, timeout),
		Comments: repository.NewCommentRepository(database, timeout),
		Members:  repository.NewMembershipRepository(database, redisCache, timeout),
		Courses:  repository.NewCourseRepository(database, timeout),
		Events:   repository.NewEventRepository(database, timeout),
		Statuses: repository.NewStatusRepository(redisCache, timeout),
		Order:    repository.NewOrderRepository(redisCache, timeout),
	}
	if wrap != nil {
		stores = wrap(stores)
	}
	table := policy.Default()
	announcer := &recordingAnnouncer{}
	h := &harness{
		stores:    stores,
		lifecycle: service.NewLifecycleService(stores, table, announcer),
		requests:  service.NewRequestService(stores, table),
		courses:   service.NewCourseService(database, stores, table),
		resync:    service.NewResyncService(stores),
		announcer: announcer,
		redis:     mr,
	}

	ctx := context.Background()
	for actor, role := range map[service.Actor]model.Role{
		alice: model.RoleStudent,
		bob:   model.RoleStudent,
		helen: model.RoleHelper,
		hank:  model.RoleHelper,
		ada:   model.RoleAdmin,
	} {
		testutil.MustNoError(t, stores.Members.SetRole(ctx, nil, course, actor.UserID, role))
	}
	return h
}

func (h *harness) submit(t *testing.T, actor service.Actor, requestID string) {
	t.Helper()
	_, err := h.requests.SubmitOrEdit(context.Background(), course, requestID, actor, json.RawMessage(`{"topic":"help"}`))
	testutil.MustNoError(t, err)
}

func (h *harness) move(t *testing.T, actor service.Actor, requestID string, target model.Status) *model.Outcome {
	t.Helper()
	outcome, err := h.lifecycle.RequestTransition(context.Background(), course, requestID, actor, string(target))
	testutil.MustNoError(t, err)
	return outcome
}

// enqueue submits a request as actor and moves it to PENDING.
func (h *harness) enqueue(t *testing.T, actor service.Actor, requestID string) {
	t.Helper()
	h.submit(t, actor, requestID)
	h.move(t, actor, requestID, model.StatusPending)
}

func (h *harness) order(t *testing.T) []string {
	t.Helper()
	order, err := h.stores.Order.List(context.Background(), course)
	testutil.MustNoError(t, err)
	return order
}

func (h *harness) statuses(t *testing.T) map[string]model.Status {
	t.Helper()
	statuses, err := h.stores.Statuses.All(context.Background(), course)
	testutil.MustNoError(t, err)
	return statuses
}

// assertOrderConsistent checks that Order holds exactly the queued requests, once each.
func (h *harness) assertOrderConsistent(t *testing.T) {
	t.Helper()
	order := h.order(t)
	statuses := h.statuses(t)
	seen := map[string]bool{}
	for _, id := range order {
		if seen[id] {
			t.Fatalf("request %s appears twice in order %v", id, order)
		}
		seen[id] = true
		if !statuses[id].IsQueued() {
			t.Fatalf("request %s in order with status %s", id, statuses[id])
		}
	}
	for id, status := range statuses {
		if status.IsQueued() && !seen[id] {
			t.Fatalf("queued request %s (%s) missing from order %v", id, status, order)
		}
	}
}
