package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"records-dashboard/backend/internal/platform/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.KindForbidden:        http.StatusForbidden,
		apperr.KindNotFound:         http.StatusNotFound,
		apperr.KindInvalidState:     http.StatusConflict,
		apperr.KindExpired:          http.StatusGone,
		apperr.KindConflict:         http.StatusConflict,
		apperr.KindLastOwnerDenied:  http.StatusConflict,
		apperr.KindSelfActionDenied: http.StatusForbidden,
		apperr.KindActorMismatch:    http.StatusForbidden,
		apperr.KindInvalidArgument:  http.StatusBadRequest,
		apperr.KindUnavailable:      http.StatusServiceUnavailable,
	}
	for kind, want := range tests {
		if got := StatusFor(kind); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.New(apperr.KindLastOwnerDenied, "keep one owner"))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Kind != apperr.KindLastOwnerDenied || body.Error.Reason != "keep one owner" || body.Error.Retryable {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteError_UntypedIsRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("dial tcp: refused"))
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Errorf("status = %d, headers = %v", rec.Code, rec.Header())
	}
	var body ErrorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if !body.Error.Retryable || strings.Contains(body.Error.Reason, "dial tcp") {
		t.Errorf("body = %+v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Role string `json:"role"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"role":"admin"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"role":"admin","x":1}`, true},
		{"trailing data", `{"role":"admin"}{"role":"member"}`, true},
		{"malformed", `{"role":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := DecodeJSON(r, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("err = %v, want InvalidArgument", err)
			}
		})
	}
}
