package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"officehours/internal/common/auth"
	pkgerrors "officehours/pkg/errors"
)

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func performRequest(router http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, apiResponse, error) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(rec, req)
	var resp apiResponse
	body := bytes.TrimSpace(rec.Body.Bytes())
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &resp); err != nil {
			return rec, resp, err
		}
	}
	return rec, resp, nil
}

type stubVerifier struct {
	tokens map[string]auth.Identity
}

func (s stubVerifier) Authenticate(_ context.Context, raw string) (auth.Identity, error) {
	if id, ok := s.tokens[raw]; ok {
		return id, nil
	}
	return auth.Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
}
