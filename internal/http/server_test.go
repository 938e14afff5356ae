package http_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	apihttp "kijiwe/internal/http"
	"kijiwe/internal/infra"
	"kijiwe/internal/modules/notify"
	"kijiwe/internal/types"
)

type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (v *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return v.token, v.err
}

type stubAlerts struct {
	recorded []types.ID
}

func (s *stubAlerts) RecordAlert(_ context.Context, userID types.ID, _, _ string) (types.ID, error) {
	s.recorded = append(s.recorded, userID)
	return "notif-1", nil
}

type stubNotifier struct {
	sent []types.ID
}

func (s *stubNotifier) Send(_ context.Context, userID types.ID, _ notify.Notification) {
	s.sent = append(s.sent, userID)
}

func newTestServer(verifier *stubVerifier) *apihttp.Server {
	return apihttp.NewServer(apihttp.ServerDeps{
		Verifier: verifier,
		Log:      slog.Default(),
	})
}

func callerToken(uid, role string) *infra.FirebaseToken {
	return &infra.FirebaseToken{UID: uid, Claims: map[string]interface{}{"role": role}}
}

func TestRoutes_HealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(&stubVerifier{err: context.Canceled})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)

	srv.Routes().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Fatalf("body = %q, want OK", w.Body.String())
	}
}

func TestRoutes_APIRequiresAuth(t *testing.T) {
	srv := newTestServer(&stubVerifier{err: context.Canceled})
	handler := srv.Routes()

	paths := []struct {
		method string
		path   string
	}{
		{"POST", "/api/rides"},
		{"POST", "/api/rides/ride-1/action"},
		{"POST", "/api/rides/ride-1/chat"},
		{"POST", "/api/scheduled-rides"},
		{"POST", "/api/scheduled-rides/sched-1/manage"},
		{"DELETE", "/api/account"},
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(p.method, p.path, nil)
		handler.ServeHTTP(w, req)
		if w.Code != 401 {
			t.Errorf("%s %s without token: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func postNotification(srv *apihttp.Server, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/users/"+target+"/notifications",
		strings.NewReader(`{"title":"Account update","body":"Your documents were approved."}`))
	req.Header.Set("Authorization", "Bearer tok")
	srv.Routes().ServeHTTP(w, req)
	return w
}

func TestUserNotification_NonAdminCannotNotifyOthers(t *testing.T) {
	alerts := &stubAlerts{}
	srv := apihttp.NewServer(apihttp.ServerDeps{
		Verifier: &stubVerifier{token: callerToken("driver-1", "Driver")},
		Alerts:   alerts,
		Notifier: &stubNotifier{},
		Log:      slog.Default(),
	})

	w := postNotification(srv, "customer-1")

	if w.Code != 403 {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(alerts.recorded) != 0 {
		t.Fatalf("alert recorded despite denial: %v", alerts.recorded)
	}
}

func TestUserNotification_AdminNotifiesAnyUser(t *testing.T) {
	alerts := &stubAlerts{}
	pushes := &stubNotifier{}
	srv := apihttp.NewServer(apihttp.ServerDeps{
		Verifier: &stubVerifier{token: callerToken("admin-1", "Admin")},
		Alerts:   alerts,
		Notifier: pushes,
		Log:      slog.Default(),
	})

	w := postNotification(srv, "customer-1")

	if w.Code != 201 {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if len(alerts.recorded) != 1 || alerts.recorded[0] != "customer-1" {
		t.Fatalf("recorded = %v, want customer-1", alerts.recorded)
	}
	if len(pushes.sent) != 1 || pushes.sent[0] != "customer-1" {
		t.Fatalf("pushes = %v, want customer-1", pushes.sent)
	}
}

func TestUserNotification_SelfTargetAllowed(t *testing.T) {
	alerts := &stubAlerts{}
	srv := apihttp.NewServer(apihttp.ServerDeps{
		Verifier: &stubVerifier{token: callerToken("customer-1", "Customer")},
		Alerts:   alerts,
		Notifier: &stubNotifier{},
		Log:      slog.Default(),
	})

	if w := postNotification(srv, "customer-1"); w.Code != 201 {
		t.Fatalf("status = %d, want 201", w.Code)
	}
}

func TestRoutes_UnknownPathIs404(t *testing.T) {
	srv := newTestServer(&stubVerifier{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/nope", nil)

	srv.Routes().ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
