package tables

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Its-donkey/campus-portal/internal/apiclient"
)

func TestHTTPFetcherBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/data/tables" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("names"); got != "courses,teachers,rooms" {
			t.Errorf("unexpected names %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tables":{"courses":[{"id":1,"name":"Go"},7],"teachers":{"oops":true}}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(apiclient.New(apiclient.Options{BaseURL: srv.URL + "/api"}), "/data/tables", "/data/table")
	got, err := f.FetchTables(context.Background(), []string{"courses", "teachers", "rooms"})
	if err != nil {
		t.Fatalf("FetchTables: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(got))
	}
	if rows := got["courses"]; len(rows) != 1 || rows[0].String("name") != "Go" {
		t.Fatalf("unexpected courses %+v", rows)
	}
	if rows, ok := got["teachers"]; !ok || len(rows) != 0 {
		t.Fatalf("non-array table should decode as empty, got %+v", rows)
	}
	if _, ok := got["rooms"]; ok {
		t.Fatalf("absent table must not be reported")
	}
}

func TestHTTPFetcherSingleTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/data/table/grades" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"table":"grades","rows":[{"id":1,"score":85}]}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(apiclient.New(apiclient.Options{BaseURL: srv.URL + "/api"}), "/data/tables", "/data/table/")
	rows, err := f.FetchTable(context.Background(), "grades")
	if err != nil {
		t.Fatalf("FetchTable: %v", err)
	}
	if len(rows) != 1 || rows[0].Int("score") != 85 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	if _, err := f.FetchTable(context.Background(), "../etc"); err == nil {
		t.Fatalf("expected invalid name error")
	}
}

func TestHTTPFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"No valid table names provided"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(apiclient.New(apiclient.Options{BaseURL: srv.URL}), "/data/tables", "/data/table")
	if _, err := f.FetchTables(context.Background(), nil); err != ErrNoTables {
		t.Fatalf("expected ErrNoTables, got %v", err)
	}

	store := NewStore(f, nil)
	err := store.Ensure(context.Background(), []string{"x"}, false)
	if apiclient.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected wrapped 400, got %v", err)
	}
	if got := store.LastError(); got != "No valid table names provided" {
		t.Fatalf("LastError = %q", got)
	}
}
