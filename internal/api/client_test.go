package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/model"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL}, zerolog.Nop())
}

func TestLoginNoBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("login carried Authorization %q", auth)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "counter@clinic.test" || body["password"] != "secret" {
			t.Errorf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  "acc",
			"refreshToken": "ref",
			"role":         "counter",
			"id":           "u1",
			"email":        "counter@clinic.test",
		})
	})
	c.SetTokenSource(staticToken("stale"))

	res, err := c.Login(context.Background(), "counter@clinic.test", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	s := res.Session()
	if s.Role != model.RoleCounter || s.AccessToken != "acc" || s.RefreshToken != "ref" || s.ID != "u1" {
		t.Errorf("session = %+v", s)
	}
}

func TestLoginBadCredentialsDoesNotFireHook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Invalid email or password"})
	})
	fired := false
	c.OnUnauthorized(func(string) { fired = true })

	_, err := c.Login(context.Background(), "x@y.z", "nope")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if got := Message(err, "Login failed"); got != "Invalid email or password" {
		t.Errorf("message = %q", got)
	}
	if fired {
		t.Error("unauthorized hook fired for an unauthenticated request")
	}
}

func TestUnauthorizedHookOnBearerRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer expired" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	c.SetTokenSource(staticToken("expired"))
	fired := 0
	var rejected string
	c.OnUnauthorized(func(token string) {
		fired++
		rejected = token
	})

	_, err := c.QueueStatus(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if fired != 1 {
		t.Errorf("hook fired %d times, want 1", fired)
	}
	if rejected != "expired" {
		t.Errorf("hook got token %q, want %q", rejected, "expired")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	var got []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("X-Request-ID"))
		json.NewEncoder(w).Encode(model.QueueSnapshot{})
	})

	ctx := WithRequestID(context.Background(), "req-123")
	c.QueueStatus(ctx)
	c.QueueStatus(context.Background())

	if got[0] != "req-123" {
		t.Errorf("first request id = %q, want req-123", got[0])
	}
	if got[1] == "" || got[1] == "req-123" {
		t.Errorf("second request id = %q, want fresh id", got[1])
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrRejected},
		{http.StatusConflict, ErrRejected},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusInternalServerError, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, `{"error":"nope"}`)
		})
		_, err := c.VisitDetails(context.Background(), "v1")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Status != tt.status || apiErr.Message != "nope" {
			t.Errorf("status %d: api error = %+v", tt.status, apiErr)
		}
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(Config{BaseURL: url}, zerolog.Nop())
	_, err := c.QueueStatus(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
	if got := Message(err, "Something went wrong"); got != "Something went wrong" {
		t.Errorf("message = %q, want fallback", got)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	_, err := c.QueueStatus(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
}

func TestTodayVisits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/visits/today" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"data":[{"id":"v1","patientName":"A. Silva","age":34,"phone":"0771234567","appointmentNumber":42,"status":"pending"}]}`)
	})

	visits, err := c.TodayVisits(context.Background())
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if len(visits) != 1 || visits[0].AppointmentNumber != 42 || visits[0].Status != model.VisitPending {
		t.Errorf("visits = %+v", visits)
	}
}

func TestUpdateProfileMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/auth/profile/update" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("clinicName") != "Harbour Clinic" {
			t.Errorf("clinicName = %q", r.FormValue("clinicName"))
		}
		f, hdr, err := r.FormFile("profileImage")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "me.png" || string(data) != "PNGDATA" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		json.NewEncoder(w).Encode(model.Identity{ID: "u1", Email: "doc@clinic.test", Role: model.RoleDoctor, Name: "Dr. Perera", ClinicName: "Harbour Clinic"})
	})
	c.SetTokenSource(staticToken("tok"))

	id, err := c.UpdateProfile(context.Background(), ProfileUpdate{
		Name:       "Dr. Perera",
		ClinicName: "Harbour Clinic",
		ImageName:  "me.png",
		Image:      strings.NewReader("PNGDATA"),
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if id.ClinicName != "Harbour Clinic" {
		t.Errorf("identity = %+v", id)
	}
}

func TestDecodePaymentOrder(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantID     string
		wantKey    string
		wantAmount string
		wantErr    bool
	}{
		{"order_id", `{"order_id":"order_1","amount":500000,"currency":"INR"}`, "order_1", "", "500000", false},
		{"id", `{"id":"order_2","amount":1}`, "order_2", "", "1", false},
		{"nested", `{"key":"rzp_test","order":{"id":"order_3","amount":1}}`, "order_3", "rzp_test", "1", false},
		{"fractional amount", `{"order_id":"order_4","amount":2500.50,"currency":"LKR"}`, "order_4", "", "2500.50", false},
		{"quoted amount", `{"order_id":"order_5","amount":"2500"}`, "order_5", "", "2500", false},
		{"no amount", `{"order_id":"order_6"}`, "order_6", "", "", false},
		{"missing", `{"amount":1}`, "", "", "", true},
		{"garbage", `[`, "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := decodePaymentOrder(json.RawMessage(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if order.OrderID != tt.wantID || order.Key != tt.wantKey {
				t.Errorf("order = %+v", order)
			}
			if order.Amount.String() != tt.wantAmount {
				t.Errorf("amount = %q, want %q", order.Amount, tt.wantAmount)
			}
		})
	}
}

func TestTemplates(t *testing.T) {
	var deleted string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/templates":
			json.NewEncoder(w).Encode([]model.Template{{ID: "t1", Name: "Paracetamol"}})
		case r.Method == http.MethodPost && r.URL.Path == "/templates":
			var tmpl model.Template
			json.NewDecoder(r.Body).Decode(&tmpl)
			tmpl.ID = "t2"
			json.NewEncoder(w).Encode(tmpl)
		case r.Method == http.MethodDelete:
			deleted = strings.TrimPrefix(r.URL.Path, "/templates/")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	list, err := c.ListTemplates(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}
	created, err := c.CreateTemplate(context.Background(), "Amoxicillin", "")
	if err != nil || created.ID != "t2" || created.Name != "Amoxicillin" {
		t.Fatalf("create = %+v, %v", created, err)
	}
	if err := c.DeleteTemplate(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "t1" {
		t.Errorf("deleted = %q", deleted)
	}
}
