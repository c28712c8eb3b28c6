package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"officehours/internal/common/auth"
	"officehours/internal/common/cache"
	"officehours/internal/common/http/middleware"
	"officehours/internal/common/ratelimit"
	"officehours/internal/queue/controller"
	"officehours/internal/queue/model"
	"officehours/internal/queue/policy"
	"officehours/internal/queue/repository"
	"officehours/internal/queue/service"
	"officehours/internal/testutil"
	pkgerrors "officehours/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	testSecret = "controller-test-secret"
	testIssuer = "officehours-test"
)

type envelope struct {
	Code    pkgerrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
}

type apiServer struct {
	router http.Handler
	tokens map[string]string
}

func newAPIServer(t *testing.T, limits controller.RateLimits) *apiServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := testutil.NewSQLite(t)
	redisCache, _ := testutil.NewRedis(t)
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
	table := policy.Default()

	revocations := auth.NewRevocationList(cache.NewLRUCache[bool](128, time.Minute), redisCache, timeout, time.Minute)
	authenticator := auth.NewAuthenticator(testSecret, testIssuer, revocations)

	router := controller.NewRouter(controller.RouterDeps{
		Verifier: authenticator,
		Limiter:  ratelimit.NewLimiter(redisCache, time.Minute, timeout),
		Limits:   limits,
		Requests: controller.NewRequestController(
			service.NewLifecycleService(stores, table, nil),
			service.NewRequestService(stores, table),
		),
		Courses: controller.NewCourseController(service.NewCourseService(database, stores, table)),
		Auth:    controller.NewAuthController(authenticator),
	})

	srv := &apiServer{router: router, tokens: map[string]string{}}
	for _, user := range []string{"ada", "alice", "helen"} {
		token, err := auth.Mint(testSecret, testIssuer, auth.Identity{UserID: user, Name: user}, time.Hour)
		testutil.MustNoError(t, err)
		srv.tokens[user] = token
	}
	return srv
}

func (s *apiServer) do(t *testing.T, user, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(testutil.MustMarshalJSON(t, body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token, ok := s.tokens[user]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp envelope
	if rec.Body.Len() > 0 {
		testutil.MustUnmarshalJSON(t, rec.Body.Bytes(), &resp)
	}
	return rec.Code, resp
}

// setupCourse creates cs101 with ada as admin, alice as student and helen as helper.
func (s *apiServer) setupCourse(t *testing.T) {
	t.Helper()
	status, resp := s.do(t, "ada", http.MethodPut, "/api/v1/courses/cs101", map[string]any{
		"name":     "Intro to CS",
		"location": "Room 101",
	})
	if status != http.StatusOK {
		t.Fatalf("put course: status %d (%s)", status, resp.Message)
	}
	if status, resp := s.do(t, "alice", http.MethodPost, "/api/v1/courses/cs101/join", nil); status != http.StatusOK {
		t.Fatalf("join: status %d (%s)", status, resp.Message)
	}
	status, resp = s.do(t, "ada", http.MethodPost, "/api/v1/courses/cs101/members", map[string]string{
		"userId": "helen",
		"role":   "helper",
	})
	if status != http.StatusOK {
		t.Fatalf("grant: status %d (%s)", status, resp.Message)
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	srv := newAPIServer(t, controller.RateLimits{})
	srv.setupCourse(t)

	status, resp := srv.do(t, "alice", http.MethodPost, "/api/v1/courses/cs101/requests", map[string]any{
		"content": map[string]string{"topic": "recursion"},
	})
	if status != http.StatusOK {
		t.Fatalf("submit: status %d (%s)", status, resp.Message)
	}
	var created model.Request
	testutil.MustUnmarshalJSON(t, resp.Data, &created)
	if created.RequestID == "" || created.CreatorID != "alice" {
		t.Fatalf("unexpected created request: %+v", created)
	}
	base := "/api/v1/courses/cs101/requests/" + created.RequestID

	status, resp = srv.do(t, "alice", http.MethodPost, base+"/status", map[string]string{"status": "pending"})
	if status != http.StatusOK {
		t.Fatalf("pending: status %d (%s)", status, resp.Message)
	}
	var moved controller.TransitionResponse
	testutil.MustUnmarshalJSON(t, resp.Data, &moved)
	testutil.AssertEqual(t, moved.Status, model.StatusPending)
	testutil.AssertEqual(t, moved.Order, []string{created.RequestID})

	status, resp = srv.do(t, "alice", http.MethodPost, base+"/status", map[string]string{"status": "SERVING"})
	testutil.AssertEqual(t, status, http.StatusForbidden)
	testutil.AssertEqual(t, resp.Code, pkgerrors.TransitionForbidden)

	status, resp = srv.do(t, "helen", http.MethodPost, "/api/v1/courses/cs101/claim", nil)
	if status != http.StatusOK {
		t.Fatalf("claim: status %d (%s)", status, resp.Message)
	}
	var claimed controller.TransitionResponse
	testutil.MustUnmarshalJSON(t, resp.Data, &claimed)
	testutil.AssertEqual(t, claimed.RequestID, created.RequestID)
	testutil.AssertEqual(t, claimed.Status, model.StatusInReview)

	status, resp = srv.do(t, "helen", http.MethodPost, "/api/v1/courses/cs101/claim", nil)
	testutil.AssertEqual(t, status, http.StatusBadRequest)
	testutil.AssertEqual(t, resp.Code, pkgerrors.NoEligibleRequest)

	if status, resp := srv.do(t, "helen", http.MethodPost, base+"/status", map[string]string{"status": "SERVING"}); status != http.StatusOK {
		t.Fatalf("serving: status %d (%s)", status, resp.Message)
	}
	status, resp = srv.do(t, "helen", http.MethodGet, "/api/v1/courses/cs101/order", nil)
	testutil.AssertEqual(t, status, http.StatusOK)
	var order model.OrderUpdate
	testutil.MustUnmarshalJSON(t, resp.Data, &order)
	testutil.AssertEqual(t, len(order.Order), 0)

	if status, resp := srv.do(t, "helen", http.MethodPost, base+"/comments", map[string]string{"text": "check the base case"}); status != http.StatusOK {
		t.Fatalf("comment: status %d (%s)", status, resp.Message)
	}
	status, resp = srv.do(t, "alice", http.MethodGet, base, nil)
	testutil.AssertEqual(t, status, http.StatusOK)
	var view struct {
		RequestID string          `json:"requestId"`
		HelperID  string          `json:"helperId"`
		Status    model.Status    `json:"status"`
		Comments  []model.Comment `json:"comments"`
	}
	testutil.MustUnmarshalJSON(t, resp.Data, &view)
	testutil.AssertEqual(t, view.Status, model.StatusServing)
	testutil.AssertEqual(t, view.HelperID, "helen")
	if len(view.Comments) != 1 || view.Comments[0].Text != "check the base case" {
		t.Fatalf("unexpected comments: %+v", view.Comments)
	}

	if status, resp := srv.do(t, "helen", http.MethodPost, base+"/status", map[string]string{"status": "CLOSED"}); status != http.StatusOK {
		t.Fatalf("close: status %d (%s)", status, resp.Message)
	}
	status, resp = srv.do(t, "alice", http.MethodPatch, base, map[string]string{"topic": "too late"})
	testutil.AssertEqual(t, status, http.StatusForbidden)
	testutil.AssertEqual(t, resp.Code, pkgerrors.RequestClosed)

	status, resp = srv.do(t, "alice", http.MethodGet, "/api/v1/courses/cs101/history?limit=5", nil)
	testutil.AssertEqual(t, status, http.StatusOK)
	var history []json.RawMessage
	testutil.MustUnmarshalJSON(t, resp.Data, &history)
	testutil.AssertEqual(t, len(history), 1)
}

func TestRejectsBadInput(t *testing.T) {
	srv := newAPIServer(t, controller.RateLimits{})
	srv.setupCourse(t)

	cases := []struct {
		name   string
		user   string
		method string
		path   string
		body   any
		status int
		code   pkgerrors.ErrorCode
	}{
		{"no token", "nobody", http.MethodGet, "/api/v1/courses", nil, http.StatusUnauthorized, pkgerrors.Unauthorized},
		{"missing status", "alice", http.MethodPost, "/api/v1/courses/cs101/requests/r1/status", map[string]string{}, http.StatusBadRequest, pkgerrors.InvalidParams},
		{"unknown request", "alice", http.MethodPost, "/api/v1/courses/cs101/requests/r1/status", map[string]string{"status": "PENDING"}, http.StatusNotFound, pkgerrors.RequestNotFound},
		{"bad history limit", "alice", http.MethodGet, "/api/v1/courses/cs101/history?limit=x", nil, http.StatusBadRequest, pkgerrors.InvalidParams},
		{"unknown role", "ada", http.MethodPost, "/api/v1/courses/cs101/members", map[string]string{"userId": "bob", "role": "dean"}, http.StatusBadRequest, pkgerrors.InvalidParams},
		{"student grants", "alice", http.MethodPost, "/api/v1/courses/cs101/members", map[string]string{"userId": "bob", "role": "helper"}, http.StatusForbidden, pkgerrors.Forbidden},
		{"student edits course", "alice", http.MethodPut, "/api/v1/courses/cs101", map[string]string{"name": "Mine now"}, http.StatusForbidden, pkgerrors.Forbidden},
		{"student claims", "alice", http.MethodPost, "/api/v1/courses/cs101/claim", nil, http.StatusForbidden, pkgerrors.Forbidden},
		{"unknown course", "alice", http.MethodPost, "/api/v1/courses/nope/join", nil, http.StatusNotFound, pkgerrors.CourseNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := srv.do(t, tc.user, tc.method, tc.path, tc.body)
			testutil.AssertEqual(t, status, tc.status)
			testutil.AssertEqual(t, resp.Code, tc.code)
		})
	}
}

func TestClaimIsRateLimited(t *testing.T) {
	srv := newAPIServer(t, controller.RateLimits{
		Claim: middleware.RateLimitPolicy{Window: time.Minute, UserMax: 1},
	})
	srv.setupCourse(t)

	status, _ := srv.do(t, "helen", http.MethodPost, "/api/v1/courses/cs101/claim", nil)
	testutil.AssertEqual(t, status, http.StatusBadRequest)
	status, resp := srv.do(t, "helen", http.MethodPost, "/api/v1/courses/cs101/claim", nil)
	testutil.AssertEqual(t, status, http.StatusTooManyRequests)
	testutil.AssertEqual(t, resp.Code, pkgerrors.TooManyRequests)
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := newAPIServer(t, controller.RateLimits{})
	srv.setupCourse(t)

	status, _ := srv.do(t, "alice", http.MethodGet, "/api/v1/courses", nil)
	testutil.AssertEqual(t, status, http.StatusOK)
	status, _ = srv.do(t, "alice", http.MethodPost, "/api/v1/auth/logout", nil)
	testutil.AssertEqual(t, status, http.StatusOK)
	status, resp := srv.do(t, "alice", http.MethodGet, "/api/v1/courses", nil)
	testutil.AssertEqual(t, status, http.StatusUnauthorized)
	testutil.AssertEqual(t, resp.Code, pkgerrors.TokenInvalid)
}

func TestHealthz(t *testing.T) {
	srv := newAPIServer(t, controller.RateLimits{})
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
}
