package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/chorusbot/chorus/internal/admin"
	"github.com/chorusbot/chorus/internal/pluralkit"
	"github.com/chorusbot/chorus/internal/store"
	"github.com/chorusbot/chorus/internal/syncer"
)

type fakeMemberRecords struct {
	members []store.Member
}

func (f *fakeMemberRecords) Members(context.Context) ([]store.Member, error) {
	return f.members, nil
}

func (f *fakeMemberRecords) Member(_ context.Context, externalID string) (store.Member, error) {
	for _, m := range f.members {
		if m.ExternalID == externalID {
			return m, nil
		}
	}
	return store.Member{}, store.ErrMemberNotFound
}

type fakeRegistrar struct {
	registerErr error
	suspended   []string
	enabled     []string
	disabled    []string
}

func (f *fakeRegistrar) Register(_ context.Context, externalID, ownerID string) (store.Member, syncer.Report, error) {
	if f.registerErr != nil {
		return store.Member{}, syncer.Report{}, f.registerErr
	}
	return store.Member{ExternalID: externalID, OwnerID: ownerID, Enabled: true}, syncer.Report{}, nil
}

func (f *fakeRegistrar) Suspend(_ context.Context, id string) error {
	f.suspended = append(f.suspended, id)
	return nil
}

func (f *fakeRegistrar) Reenable(_ context.Context, id string) error {
	f.enabled = append(f.enabled, id)
	return nil
}

func (f *fakeRegistrar) Disable(_ context.Context, id string) error {
	f.disabled = append(f.disabled, id)
	return nil
}

func (f *fakeRegistrar) CreateInvite(context.Context, string) (string, error) {
	return "code-1", nil
}

func (f *fakeRegistrar) RedeemInvite(code string) (string, error) {
	if code != "code-1" {
		return "", admin.ErrInviteNotFound
	}
	return "alpha", nil
}

func (f *fakeRegistrar) RegisterSystem(_ context.Context, systemID, ownerID string) ([]admin.SystemRegistration, error) {
	if systemID != "exmpl" {
		return nil, pluralkit.ErrNotFound
	}
	return []admin.SystemRegistration{
		{ExternalID: "alpha", Status: admin.StatusRegistered},
		{ExternalID: "beta", Status: admin.StatusSkipped},
	}, nil
}

func serve(h *MemberHandler, method, path, body string) *httptest.ResponseRecorder {
	e := echo.New()
	h.Register(e)
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListMembers(t *testing.T) {
	records := &fakeMemberRecords{members: []store.Member{
		{ExternalID: "abcde", Name: "Luna"},
		{ExternalID: "fghij", Name: "Sol"},
	}}
	h := NewMemberHandler(echoLogger(), records, &fakeRegistrar{})

	rec := serve(h, http.MethodGet, "/members", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []store.Member
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].Name != "Luna" {
		t.Fatalf("unexpected members %+v", out)
	}
}

func TestGetMemberNotFound(t *testing.T) {
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, &fakeRegistrar{})
	rec := serve(h, http.MethodGet, "/members/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateMember(t *testing.T) {
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, &fakeRegistrar{})
	rec := serve(h, http.MethodPost, "/members", `{"external_id": "abcde", "owner_id": "owner-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out RegisterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Member.ExternalID != "abcde" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestCreateMemberValidation(t *testing.T) {
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, &fakeRegistrar{})
	rec := serve(h, http.MethodPost, "/members", `{"external_id": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateMemberNoFreeCredential(t *testing.T) {
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, &fakeRegistrar{registerErr: store.ErrNoFreeCredential})
	rec := serve(h, http.MethodPost, "/members", `{"external_id": "abcde", "owner_id": "owner-1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	registrar := &fakeRegistrar{}
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, registrar)

	if rec := serve(h, http.MethodPost, "/members/abcde/suspend", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("suspend: expected 204, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/members/abcde/enable", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("enable: expected 204, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodDelete, "/members/abcde", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if len(registrar.suspended) != 1 || len(registrar.enabled) != 1 || len(registrar.disabled) != 1 {
		t.Fatalf("unexpected registrar calls %+v", registrar)
	}
}

func TestInviteEndpoint(t *testing.T) {
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, &fakeRegistrar{})
	rec := serve(h, http.MethodPost, "/members/abcde/invite", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "code-1") {
		t.Fatalf("expected the invite code, got %s", rec.Body.String())
	}
}

func TestRedeemInviteEndpoint(t *testing.T) {
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, &fakeRegistrar{})

	rec := serve(h, http.MethodPost, "/invites/code-1/redeem", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "alpha") {
		t.Fatalf("expected the member id, got %s", rec.Body.String())
	}

	rec = serve(h, http.MethodPost, "/invites/bogus/redeem", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown code, got %d", rec.Code)
	}
}

func TestRegisterSystemEndpoint(t *testing.T) {
	h := NewMemberHandler(echoLogger(), &fakeMemberRecords{}, &fakeRegistrar{})

	rec := serve(h, http.MethodPost, "/systems/exmpl/register", `{"owner_id": "owner-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var results []admin.SystemRegistration
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 2 || results[0].Status != admin.StatusRegistered || results[1].Status != admin.StatusSkipped {
		t.Fatalf("unexpected results %+v", results)
	}

	rec = serve(h, http.MethodPost, "/systems/ghost/register", `{"owner_id": "owner-1"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown system, got %d", rec.Code)
	}

	rec = serve(h, http.MethodPost, "/systems/exmpl/register", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without owner_id, got %d", rec.Code)
	}
}
