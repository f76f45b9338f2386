package cms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iliyamo/festival-registration/internal/model"
)

func TestCreateRegistrationWrapsPayload(t *testing.T) {
	var got map[string]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/registrations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"data":{"id":42,"attributes":{}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", srv.Client())
	id, err := c.CreateRegistration(context.Background(), model.Registration{
		ID: 7, Code: "ABCDEFGHIJ", FirstName: "Luca", RaceType: model.RaceRunning, PaymentStatus: model.PaymentPending,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	data := got["data"]
	if data["codiceRegistrazione"] != "ABCDEFGHIJ" || data["stato_pagamento"] != "in_attesa" {
		t.Fatalf("unexpected payload %v", data)
	}
	if _, ok := data["id"]; ok {
		t.Fatal("client side id must not be sent")
	}
}

func TestCreateRegistrationFailureIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"status":500,"message":"boom"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", srv.Client()).CreateRegistration(context.Background(), model.Registration{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 || apiErr.Message != "boom" {
		t.Fatalf("expected APIError 500, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("create was sent %d times", calls)
	}
}

func TestGetRegistrationDecodesAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/registrations/5":
			w.Write([]byte(`{"data":{"id":5,"attributes":{"codiceRegistrazione":"ZXCVBNMLKJ","tipo_gara":"ciclistica","pasta_party":true,"conteggio_pastaparty":3,"stato_pagamento":"in_attesa"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "", srv.Client())

	reg, err := c.GetRegistration(context.Background(), 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reg.ID != 5 || reg.RaceType != model.RaceCycling || reg.MealCount != 3 || !reg.MealAddOn {
		t.Fatalf("unexpected registration %+v", reg)
	}
	if _, err := c.GetRegistration(context.Background(), 6); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePayment(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/registrations/9" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Write([]byte(`{"data":{"id":9,"attributes":{}}}`))
	}))
	defer srv.Close()

	if err := New(srv.URL, "", srv.Client()).UpdatePayment(context.Background(), 9, model.PaymentCompleted, "pi_123"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(body, `"stato_pagamento":"completato"`) || !strings.Contains(body, `"id_pagamento":"pi_123"`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestListRegistrationsFollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("filters[stato_pagamento][$eq]"); got != "completato" {
			t.Errorf("filter = %q", got)
		}
		switch r.URL.Query().Get("pagination[page]") {
		case "1":
			w.Write([]byte(`{"data":[{"id":1,"attributes":{"nome":"A"}}],"meta":{"pagination":{"page":1,"pageCount":2,"total":2}}}`))
		case "2":
			w.Write([]byte(`{"data":[{"id":2,"attributes":{"nome":"B"}}],"meta":{"pagination":{"page":2,"pageCount":2,"total":2}}}`))
		default:
			t.Errorf("unexpected page %s", r.URL.RawQuery)
		}
	}))
	defer srv.Close()

	regs, err := New(srv.URL, "", srv.Client()).ListRegistrations(context.Background(), model.PaymentCompleted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(regs) != 2 || regs[0].FirstName != "A" || regs[1].ID != 2 {
		t.Fatalf("unexpected result %+v", regs)
	}
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uploads" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("files")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "liberatoria.pdf" || string(data) != "%PDF-1.3" {
			t.Errorf("unexpected upload %s %q", hdr.Filename, data)
		}
		w.Write([]byte(`[{"id":77,"name":"liberatoria.pdf"}]`))
	}))
	defer srv.Close()

	id, err := New(srv.URL, "", srv.Client()).Upload(context.Background(), "liberatoria.pdf", "application/pdf", []byte("%PDF-1.3"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if id != 77 {
		t.Fatalf("id = %d", id)
	}
}
