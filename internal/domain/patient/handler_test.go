package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type listBody struct {
	Data  []Summary `json:"data"`
	Total int       `json:"total"`
}

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func TestHandler_SearchPatients_ByPatientID(t *testing.T) {
	h, e := newTestHandler()
	created, _ := h.svc.InsertPatient(context.Background(), validRequest())
	h.svc.InsertPatient(context.Background(), validRequest())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?patient="+created.PatientID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 {
		t.Fatalf("expected exactly one match, got total=%d len=%d", body.Total, len(body.Data))
	}
	if body.Data[0].PatientID != created.PatientID {
		t.Errorf("expected %s, got %s", created.PatientID, body.Data[0].PatientID)
	}
}

func TestHandler_SearchPatients_UnknownPatientID(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?patient=P404404", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body listBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 0 || len(body.Data) != 0 {
		t.Errorf("expected empty result, got %+v", body)
	}
}

func TestHandler_SearchPatients_List(t *testing.T) {
	h, e := newTestHandler()
	for i := 0; i < 3; i++ {
		h.svc.InsertPatient(context.Background(), validRequest())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body listBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 3 {
		t.Errorf("expected total 3, got %d", body.Total)
	}
	if len(body.Data) != 2 {
		t.Errorf("expected page of 2, got %d", len(body.Data))
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()
	created, _ := h.svc.InsertPatient(context.Background(), validRequest())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetPatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 HTTPError, got %v", err)
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.GetPatient(c); err == nil {
		t.Error("expected error for invalid id")
	}
}
