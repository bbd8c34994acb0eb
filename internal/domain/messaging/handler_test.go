package messaging

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
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req.WithContext(ctx), rec), rec
}

func TestHandler_SendAndList(t *testing.T) {
	h, e := newTestHandler()

	c, rec := newContext(e, patientCtx(), http.MethodPost, "/api/messages/send",
		`{"senderId":"pat-1","receiverId":"doc-1","content":"Hello"}`)
	if err := h.Send(c); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, rec = newContext(e, doctorCtx(), http.MethodGet, "/api/messages/doctor/doc-1", "")
	c.SetParamNames("doctorId")
	c.SetParamValues("doc-1")
	if err := h.ListForDoctor(c); err != nil {
		t.Fatal(err)
	}
	var msgs []DirectMessage
	json.Unmarshal(rec.Body.Bytes(), &msgs)
	if len(msgs) != 1 || msgs[0].Content != "Hello" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestHandler_Send_UnknownReceiver(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, patientCtx(), http.MethodPost, "/api/messages/send",
		`{"senderId":"pat-1","receiverId":"ghost","content":"Hello"}`)
	if err := h.Send(c); apperr.Status(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_SendByEmail_ReadAndDelete(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, doctorCtx(), http.MethodPost, "/api/messages/send-by-email",
		`{"senderId":"doc-1","receiverEmail":"pat@example.com","content":"See you Monday","messageType":"appointment"}`)
	if err := h.SendByEmail(c); err != nil {
		t.Fatal(err)
	}
	var sent DirectMessage
	json.Unmarshal(rec.Body.Bytes(), &sent)

	c, rec = newContext(e, patientCtx(), http.MethodPut, "/api/messages/"+sent.ID+"/read", "")
	c.SetParamNames("messageId")
	c.SetParamValues(sent.ID)
	if err := h.MarkRead(c); err != nil {
		t.Fatal(err)
	}
	var read DirectMessage
	json.Unmarshal(rec.Body.Bytes(), &read)
	if !read.Read || read.ReadAt == nil {
		t.Errorf("expected read message, got %+v", read)
	}

	c, rec = newContext(e, patientCtx(), http.MethodGet, "/api/messages/patient/byEmail/pat@example.com", "")
	c.SetParamNames("patientEmail")
	c.SetParamValues("pat@example.com")
	if err := h.ListForPatientByEmail(c); err != nil {
		t.Fatal(err)
	}
	var msgs []DirectMessage
	json.Unmarshal(rec.Body.Bytes(), &msgs)
	if len(msgs) != 1 {
		t.Errorf("expected 1 message, got %d", len(msgs))
	}

	c, _ = newContext(e, patientCtx(), http.MethodDelete, "/api/messages/"+sent.ID, "")
	c.SetParamNames("messageId")
	c.SetParamValues(sent.ID)
	if err := h.Delete(c); err != nil {
		t.Fatal(err)
	}
}

func TestHandler_ListBetween_Empty(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, patientCtx(), http.MethodGet, "/api/messages/between/pat-1/doc-1", "")
	c.SetParamNames("senderId", "receiverId")
	c.SetParamValues("pat-1", "doc-1")
	if err := h.ListBetween(c); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}
