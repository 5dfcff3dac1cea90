package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
		wantErr    bool
		delivered  bool
	}{
		{"code", "?state=s1&code=abc", http.StatusOK, "abc", false, true},
		{"provider error", "?state=s1&error=access_denied", http.StatusBadRequest, "", true, true},
		{"wrong state", "?state=other&code=abc", http.StatusBadRequest, "", false, false},
		{"missing code", "?state=s1", http.StatusBadRequest, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(chan callbackResult, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s1", results).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if !tt.delivered {
				assert.Empty(t, results)
				return
			}
			require.Len(t, results, 1)
			res := <-results
			assert.Equal(t, tt.wantCode, res.code)
			assert.Equal(t, tt.wantErr, res.err != nil)
		})
	}
}

func TestCallbackHandlerDeliversOnce(t *testing.T) {
	results := make(chan callbackResult, 1)
	h := callbackHandler("s1", results)
	for _, code := range []string{"first", "second"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s1&code="+code, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	require.Len(t, results, 1)
	assert.Equal(t, "first", (<-results).code)
}
