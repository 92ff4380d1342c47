package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fractalaw/fractalaw/internal/schema"
)

func TestClientTrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://localhost:4000/", nil)
	if c.BaseURL() != "http://localhost:4000" {
		t.Errorf("base URL = %q", c.BaseURL())
	}
}

func TestPullAnnotations(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]schema.Annotation{{
			LawName:    "UK_ukpga_1974_37",
			Provision:  "s.2(1)",
			DrrpType:   "duty",
			SourceText: "It shall be the duty of every employer...",
			Confidence: 0.85,
			ScrapedAt:  "2026-02-21T10:00:00Z",
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	anns, err := c.PullAnnotations(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("PullAnnotations failed: %v", err)
	}
	if gotPath != "/api/outbox/annotations" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "" {
		t.Errorf("unexpected query %q without since", gotQuery)
	}
	if len(anns) != 1 || anns[0].Provision != "s.2(1)" {
		t.Errorf("annotations = %+v", anns)
	}
}

func TestPullAnnotationsSince(t *testing.T) {
	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	since := time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)
	c := NewClient(srv.URL, nil)
	if _, err := c.PullAnnotations(context.Background(), since); err != nil {
		t.Fatalf("PullAnnotations failed: %v", err)
	}
	if gotSince != "2026-02-21T10:00:00Z" {
		t.Errorf("since = %q", gotSince)
	}
}

func TestPullServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "outbox unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.PullAnnotations(context.Background(), time.Time{})
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want ServerError", err)
	}
	if se.Status != http.StatusBadGateway {
		t.Errorf("status = %d", se.Status)
	}
}

func TestPushPolished(t *testing.T) {
	var received []schema.PolishedEntry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(pushResponse{Accepted: uint64(len(received))})
	}))
	defer srv.Close()

	qualifier := "so far as is reasonably practicable"
	entries := []schema.PolishedEntry{{
		LawName:    "UK_ukpga_1974_37",
		Provision:  "s.2(1)",
		DrrpType:   "duty",
		Holder:     "every employer",
		Text:       "ensure health safety and welfare",
		Qualifier:  &qualifier,
		ClauseRef:  "s.2(1)",
		Confidence: 0.95,
		PolishedAt: "2026-02-21T13:00:00Z",
		Model:      "test-model",
	}}

	c := NewClient(srv.URL, nil)
	accepted, err := c.PushPolished(context.Background(), entries)
	if err != nil {
		t.Fatalf("PushPolished failed: %v", err)
	}
	if accepted != 1 {
		t.Errorf("accepted = %d", accepted)
	}
	if len(received) != 1 || received[0].Holder != "every employer" {
		t.Errorf("received = %+v", received)
	}
	if received[0].Qualifier == nil || *received[0].Qualifier != qualifier {
		t.Errorf("qualifier = %v", received[0].Qualifier)
	}
}

func TestPolishedEntryNullQualifier(t *testing.T) {
	raw := `{
		"law_name": "UK_ukpga_1974_37",
		"provision": "s.3",
		"drrp_type": "duty",
		"holder": "every employer",
		"text": "conduct undertaking without risk",
		"qualifier": null,
		"clause_ref": "s.3",
		"confidence": 0.90,
		"polished_at": "2026-02-21T13:00:00Z",
		"model": "test-model"
	}`
	var entry schema.PolishedEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if entry.Qualifier != nil {
		t.Errorf("qualifier = %v, want nil", entry.Qualifier)
	}
}
