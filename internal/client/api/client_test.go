package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dzaharov/vaultsync/internal/common"
)

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, common.ErrorUnauthorized},
		{http.StatusLocked, common.ErrAccountLocked},
		{http.StatusForbidden, common.ErrAccountBlocked},
		{http.StatusConflict, ErrConflict},
	}
	for _, tc := range cases {
		if got := statusError(tc.code, nil); !errors.Is(got, tc.want) {
			t.Errorf("statusError(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}

	err := statusError(http.StatusBadGateway, []byte("upstream down\n"))
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("unexpected generic error: %v", err)
	}
}

func TestDo_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(common.AuthorizationHeaderName)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"revisionNumber": 3, "serverVersion": "1.0.0"})
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.SetTokens("my-access", "my-refresh")
	status, err := c.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if gotAuth != "Bearer my-access" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if status.RevisionNumber != 3 || status.ServerVersion != "1.0.0" {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestRefresh_InstallsNewPair(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.RefreshToken != "old-refresh" {
			t.Errorf("submitted refresh = %q", req.RefreshToken)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"})
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.SetTokens("old-access", "old-refresh")
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	access, refresh := c.Tokens()
	if access != "new-access" || refresh != "new-refresh" {
		t.Errorf("tokens = %q/%q, want the new pair", access, refresh)
	}
}

func TestRevoke_ClearsTokens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.SetTokens("a", "r")
	if err := c.Revoke(context.Background()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	access, refresh := c.Tokens()
	if access != "" || refresh != "" {
		t.Error("tokens should be cleared after revoke")
	}
}

func TestLogin_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "account locked", http.StatusLocked)
	}))
	defer ts.Close()

	c := New(ts.URL)
	_, err := c.Login(context.Background(), "alice")
	if !errors.Is(err, common.ErrAccountLocked) {
		t.Fatalf("want ErrAccountLocked, got %v", err)
	}
}

func TestValidate_TwoFactorPending(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ValidateResult{RequiresTwoFactor: true, ServerSessionProof: []byte("M2")})
	}))
	defer ts.Close()

	c := New(ts.URL)
	result, err := c.Validate(context.Background(), Attempt{Username: "alice"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.RequiresTwoFactor || result.Tokens != nil {
		t.Errorf("unexpected result: %+v", result)
	}
}
