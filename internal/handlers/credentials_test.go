package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/chorusbot/chorus/internal/store"
)

type fakePool struct {
	creds    []store.Credential
	added    []string
	released []string
}

func (f *fakePool) AddCredential(_ context.Context, token string) error {
	f.added = append(f.added, token)
	return nil
}

func (f *fakePool) ReleaseCredential(_ context.Context, token string) error {
	f.released = append(f.released, token)
	return nil
}

func (f *fakePool) Credentials(context.Context) ([]store.Credential, error) {
	return f.creds, nil
}

func TestCredentialListHidesTokens(t *testing.T) {
	pool := &fakePool{creds: []store.Credential{
		{Token: "super-secret-1", Used: true},
		{Token: "super-secret-2", Used: false},
	}}
	e := echo.New()
	NewCredentialHandler(echoLogger(), pool).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/credentials", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "super-secret") {
		t.Fatal("tokens must never be echoed back")
	}
	var status PoolStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Total != 2 || status.Free != 1 {
		t.Fatalf("unexpected pool status %+v", status)
	}
}

func TestAddCredential(t *testing.T) {
	pool := &fakePool{}
	e := echo.New()
	NewCredentialHandler(echoLogger(), pool).Register(e)

	req := httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(`{"token": "tok-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if len(pool.added) != 1 || pool.added[0] != "tok-1" {
		t.Fatalf("unexpected adds %v", pool.added)
	}

	req = httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(`{"token": ""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty token, got %d", rec.Code)
	}
}

func TestReleaseCredential(t *testing.T) {
	pool := &fakePool{}
	e := echo.New()
	NewCredentialHandler(echoLogger(), pool).Register(e)

	req := httptest.NewRequest(http.MethodPost, "/credentials/release", strings.NewReader(`{"token": "tok-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(pool.released) != 1 || pool.released[0] != "tok-1" {
		t.Fatalf("unexpected releases %v", pool.released)
	}
}
