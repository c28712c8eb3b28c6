package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"officehours/pkg/errors"

	"github.com/gin-gonic/gin"
)

type apiResponse struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	TraceID string                 `json:"trace_id"`
}

func runHandler(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", func(c *gin.Context) {
		c.Set("trace_id", "trace-1")
		handler(c)
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	router.ServeHTTP(w, req)

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return w, resp
}

func TestErrorKeepsClientMessage(t *testing.T) {
	w, resp := runHandler(t, func(c *gin.Context) {
		Error(c, errors.Newf(errors.TransitionForbidden, "cannot move PENDING to RESOLVED"))
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if resp.Code != int(errors.TransitionForbidden) {
		t.Fatalf("unexpected code: %d", resp.Code)
	}
	if resp.Message != "cannot move PENDING to RESOLVED" {
		t.Fatalf("unexpected message: %s", resp.Message)
	}
	if resp.TraceID != "trace-1" {
		t.Fatalf("unexpected trace id: %s", resp.TraceID)
	}
}

func TestErrorHidesServerDetail(t *testing.T) {
	w, resp := runHandler(t, func(c *gin.Context) {
		Error(c, errors.Unavailable(stderrors.New("dial tcp 10.0.0.3:6379: connect refused"), "read status"))
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if resp.Message != errors.StoreUnavailable.Message() {
		t.Fatalf("unexpected message: %s", resp.Message)
	}
	if resp.Details != nil {
		t.Fatalf("expected no details, got %v", resp.Details)
	}
}

func TestErrorWrapsForeignErrors(t *testing.T) {
	w, resp := runHandler(t, func(c *gin.Context) {
		Error(c, stderrors.New("boom"))
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if resp.Code != int(errors.InternalServerError) {
		t.Fatalf("unexpected code: %d", resp.Code)
	}
}

func TestSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ok", func(c *gin.Context) { Success(c, gin.H{"order": []string{"a"}}) })
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	var body struct {
		Code int `json:"code"`
		Data struct {
			Order []string `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Code != int(errors.Success) || len(body.Data.Order) != 1 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
