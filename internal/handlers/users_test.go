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

type autoproxyWrite struct {
	userID string
	mode   store.AutoproxyMode
	target string
}

type fakeUserRecords struct {
	users    map[string]store.User
	upserted []string
	writes   []autoproxyWrite
	setErr   error
}

func (f *fakeUserRecords) User(_ context.Context, id string) (store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRecords) UpsertUser(_ context.Context, id string) error {
	f.upserted = append(f.upserted, id)
	return nil
}

func (f *fakeUserRecords) SetAutoproxy(_ context.Context, userID string, mode store.AutoproxyMode, target string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.writes = append(f.writes, autoproxyWrite{userID: userID, mode: mode, target: target})
	return nil
}

func newUsersEcho(records *fakeUserRecords) *echo.Echo {
	e := echo.New()
	NewUserHandler(echoLogger(), records).Register(e)
	return e
}

func TestGetUser(t *testing.T) {
	records := &fakeUserRecords{users: map[string]store.User{
		"owner-1": {ID: "owner-1", AutoproxyMode: store.AutoproxyLatch, AutoproxyMember: "alpha"},
	}}
	e := newUsersEcho(records)

	req := httptest.NewRequest(http.MethodGet, "/users/owner-1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var user store.User
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.AutoproxyMode != store.AutoproxyLatch || user.AutoproxyMember != "alpha" {
		t.Fatalf("unexpected user %+v", user)
	}

	req = httptest.NewRequest(http.MethodGet, "/users/missing", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSetAutoproxy(t *testing.T) {
	records := &fakeUserRecords{}
	e := newUsersEcho(records)

	req := httptest.NewRequest(http.MethodPut, "/users/owner-1/autoproxy",
		strings.NewReader(`{"mode": "member", "member": "alpha"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(records.upserted) != 1 || records.upserted[0] != "owner-1" {
		t.Fatalf("expected user row ensured, got %v", records.upserted)
	}
	if len(records.writes) != 1 {
		t.Fatalf("expected one write, got %v", records.writes)
	}
	w := records.writes[0]
	if w.mode != store.AutoproxyMember || w.target != "alpha" {
		t.Fatalf("unexpected write %+v", w)
	}
}

func TestSetAutoproxyValidation(t *testing.T) {
	records := &fakeUserRecords{}
	e := newUsersEcho(records)

	for name, body := range map[string]string{
		"unknown mode":          `{"mode": "sometimes"}`,
		"member without target": `{"mode": "member"}`,
	} {
		req := httptest.NewRequest(http.MethodPut, "/users/owner-1/autoproxy", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
	if len(records.writes) != 0 {
		t.Fatalf("expected no writes, got %v", records.writes)
	}
}

func TestSetAutoproxyForeignMember(t *testing.T) {
	records := &fakeUserRecords{setErr: store.ErrNotOwned}
	e := newUsersEcho(records)

	req := httptest.NewRequest(http.MethodPut, "/users/owner-1/autoproxy",
		strings.NewReader(`{"mode": "latch", "member": "someone-elses"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
