package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func postJSON(t *testing.T, h echo.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestHandleCreateManualAlert(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	h := NewHandler(r, "clinic-a")

	rec := postJSON(t, h.HandleCreate, "/alerts",
		`{"patient_id": "p1", "level": "WARNING", "message": "family reports worsening confusion"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data       Alert  `json:"data"`
		Disclaimer string `json:"disclaimer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Source != SourceManual || resp.Data.Level != LevelWarning {
		t.Errorf("unexpected alert: %+v", resp.Data)
	}
	if resp.Data.TenantID != "clinic-a" {
		t.Errorf("expected default tenant, got %q", resp.Data.TenantID)
	}
	if resp.Disclaimer == "" {
		t.Error("expected disclaimer on response")
	}

	if active := r.ListActive("clinic-a"); len(active) != 1 {
		t.Errorf("expected 1 active alert, got %d", len(active))
	}
}

func TestHandleCreateDefaultsToInfoLevel(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	h := NewHandler(r, "clinic-a")

	rec := postJSON(t, h.HandleCreate, "/alerts",
		`{"patient_id": "p1", "message": "note for next shift"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	active := r.ListActive("clinic-a")
	if len(active) != 1 || active[0].Level != LevelInfo {
		t.Errorf("expected one INFO alert, got %+v", active)
	}
}

func TestHandleCreateRejectsBadInput(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	h := NewHandler(r, "clinic-a")

	cases := []struct {
		name string
		body string
	}{
		{"missing patient", `{"message": "no patient"}`},
		{"missing message", `{"patient_id": "p1"}`},
		{"unknown level", `{"patient_id": "p1", "level": "SEVERE", "message": "x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleCreate, "/alerts", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
	if active := r.ListActive("clinic-a"); len(active) != 0 {
		t.Errorf("expected no alerts recorded, got %d", len(active))
	}
}

func TestHandleSOSRequiresPatient(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	h := NewHandler(r, "clinic-a")

	rec := postJSON(t, h.HandleSOS, "/sos", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = postJSON(t, h.HandleSOS, "/sos", `{"patient_id": "p9"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	active := r.ListActive("clinic-a")
	if len(active) != 1 || active[0].Source != SourceSOS || active[0].Level != LevelCritical {
		t.Errorf("unexpected SOS alert: %+v", active)
	}
}
