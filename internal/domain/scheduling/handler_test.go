package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/feelwell/feelwell/internal/platform/apperr"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func newContext(e *echo.Echo, ctx context.Context, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func createViaHandler(t *testing.T, h *Handler, e *echo.Echo, body string) Appointment {
	t.Helper()
	c, rec := newContext(e, adminCtx(), http.MethodPost, "/appointments", body)
	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	return a
}

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	a := createViaHandler(t, h, e, `{"userId":"pat-1","doctorId":"doc-1","date":"2025-03-10","time":"9:00 AM","visitType":"video"}`)
	if a.ReferenceNumber == "" || a.Status != StatusScheduled {
		t.Errorf("unexpected appointment: %+v", a)
	}
}

func TestHandler_Create_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, adminCtx(), http.MethodPost, "/appointments", `{"doctorId":"doc-1"}`)
	if err := h.Create(c); apperr.Status(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListGetUpdateDelete(t *testing.T) {
	h, e := newTestHandler()
	a := createViaHandler(t, h, e, `{"patientId":"pat-1","doctorId":"doc-1","date":"2025-03-10","time":"10:00 AM"}`)
	createViaHandler(t, h, e, `{"patientId":"pat-1","doctorId":"doc-1","date":"2025-03-10","time":"9:00 AM"}`)

	c, rec := newContext(e, adminCtx(), http.MethodGet, "/appointments?userId=pat-1", "")
	if err := h.List(c); err != nil {
		t.Fatal(err)
	}
	var list []Appointment
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 2 || list[0].Time != "9:00 AM" {
		t.Fatalf("unexpected list: %+v", list)
	}

	c, rec = newContext(e, adminCtx(), http.MethodGet, "/appointments/"+a.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(a.ID)
	if err := h.Get(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, rec = newContext(e, adminCtx(), http.MethodPut, "/appointments/"+a.ID, `{"status":"confirmed"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID)
	if err := h.Update(c); err != nil {
		t.Fatal(err)
	}
	var updated Appointment
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Status != StatusConfirmed || updated.ConfirmedAt == nil {
		t.Errorf("expected confirmed with timestamp, got %+v", updated)
	}

	c, _ = newContext(e, adminCtx(), http.MethodDelete, "/appointments/"+a.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(a.ID)
	if err := h.Delete(c); err != nil {
		t.Fatal(err)
	}

	c, _ = newContext(e, adminCtx(), http.MethodGet, "/appointments/"+a.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(a.ID)
	if err := h.Get(c); apperr.Status(err) != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %v", err)
	}
}

func TestHandler_List_Empty(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, adminCtx(), http.MethodGet, "/appointments", "")
	if err := h.List(c); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}
