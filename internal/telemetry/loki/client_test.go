package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient("  ", "", time.Second); err == nil {
		t.Fatal("NewClient with empty URL should fail")
	}
}

func TestPushAuditJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	raw := []byte(`{"id":"e1","orgId":"org 1","action":"member.removed","targetType":"member","outcome":"success","timestamp":"2026-05-01T12:00:00Z"}`)
	if err := c.PushAuditJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushAuditJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %+v", got.Streams)
	}
	s := got.Streams[0]
	want := map[string]string{"job": DefaultJob, "org_id": "org_1", "action": "member.removed", "target_type": "member", "outcome": "success"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %s = %q, want %q", k, s.Stream[k], v)
		}
	}
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC).UnixNano()
	if len(s.Values) != 1 || s.Values[0][0] != jsonInt(ts) || s.Values[0][1] != string(raw) {
		t.Errorf("values = %v", s.Values)
	}
}

func TestPushAuditJSON_UnparseableLine(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()
	c, _ := NewClient(srv.URL, "custom", time.Second)
	if err := c.PushAuditJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if len(got.Streams[0].Stream) != 1 || got.Streams[0].Stream["job"] != "custom" {
		t.Errorf("labels = %v", got.Streams[0].Stream)
	}
}

func TestPush_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c, _ := NewClient(srv.URL, "", time.Second)
	if err := c.Push(context.Background(), time.Now(), "line", nil); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestPush_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	c, _ := NewClient(srv.URL, "", time.Second)
	if err := c.Push(context.Background(), time.Now(), "line", nil); err == nil {
		t.Fatal("Push should fail on 400")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
