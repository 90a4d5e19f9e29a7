package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rileybruner/tenantgrid-backend/internal/notifications"
	pkgerrors "github.com/rileybruner/tenantgrid-backend/pkg/errors"
	"github.com/rileybruner/tenantgrid-backend/pkg/types"
)

type fakeNotificationsService struct {
	listParams  *notifications.ListParams
	listResult  *notifications.ListResult
	listErr     error
	readTenant  uuid.UUID
	readID      uuid.UUID
	readErr     error
	markedAll   uuid.UUID
	markAllN    int64
	markAllErr  error
}

func (f *fakeNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	f.listParams = &params
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listResult != nil {
		return f.listResult, nil
	}
	return &notifications.ListResult{}, nil
}

func (f *fakeNotificationsService) MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID) error {
	f.readTenant = tenantID
	f.readID = notificationID
	return f.readErr
}

func (f *fakeNotificationsService) MarkAllRead(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	f.markedAll = tenantID
	return f.markAllN, f.markAllErr
}

func notificationsRouter(svc notifications.Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/tenants/{tenantId}/notifications", func(r chi.Router) {
		r.Get("/", ListNotifications(svc, nil))
		r.Post("/{notificationId}/read", MarkNotificationRead(svc, nil))
		r.Post("/read-all", MarkAllNotificationsRead(svc, nil))
	})
	return r
}

func TestListNotifications_ParsesQuery(t *testing.T) {
	svc := &fakeNotificationsService{}
	router := notificationsRouter(svc)
	tenantID := uuid.New()

	url := fmt.Sprintf("/api/v1/tenants/%s/notifications?limit=5&unreadOnly=true&cursor=abc", tenantID)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listParams == nil {
		t.Fatal("service not invoked")
	}
	if svc.listParams.TenantID != tenantID {
		t.Fatalf("tenant mismatch: %s", svc.listParams.TenantID)
	}
	if svc.listParams.Limit != 5 || !svc.listParams.UnreadOnly || svc.listParams.Cursor != "abc" {
		t.Fatalf("query not mapped: %+v", svc.listParams)
	}
}

func TestListNotifications_RejectsBadLimit(t *testing.T) {
	svc := &fakeNotificationsService{}
	router := notificationsRouter(svc)

	url := fmt.Sprintf("/api/v1/tenants/%s/notifications?limit=zero", uuid.New())
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.listParams != nil {
		t.Fatal("service must not be invoked for invalid input")
	}
}

func TestListNotifications_RejectsBadTenantID(t *testing.T) {
	svc := &fakeNotificationsService{}
	router := notificationsRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/not-a-uuid/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMarkNotificationRead_MapsNotFound(t *testing.T) {
	svc := &fakeNotificationsService{readErr: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")}
	router := notificationsRouter(svc)
	tenantID := uuid.New()
	notificationID := uuid.New()

	url := fmt.Sprintf("/api/v1/tenants/%s/notifications/%s/read", tenantID, notificationID)
	req := httptest.NewRequest(http.MethodPost, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if svc.readTenant != tenantID || svc.readID != notificationID {
		t.Fatalf("ids not forwarded: %s %s", svc.readTenant, svc.readID)
	}
}

func TestMarkAllNotificationsRead_ReturnsCount(t *testing.T) {
	svc := &fakeNotificationsService{markAllN: 4}
	router := notificationsRouter(svc)
	tenantID := uuid.New()

	url := fmt.Sprintf("/api/v1/tenants/%s/notifications/read-all", tenantID)
	req := httptest.NewRequest(http.MethodPost, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.markedAll != tenantID {
		t.Fatalf("tenant mismatch: %s", svc.markedAll)
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["updated"] != float64(4) {
		t.Fatalf("unexpected count %v", data["updated"])
	}
}
