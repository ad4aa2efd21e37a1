package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/id" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ID":"abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.Connected(context.Background()) {
		t.Error("expected Connected to return true")
	}
}

func TestConnectedFailsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if c.Connected(context.Background()) {
		t.Error("expected Connected to return false on 500")
	}
}

func TestAddReturnsCID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/add" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("cid-version") != "1" {
			t.Errorf("expected cid-version=1, got %s", r.URL.Query().Get("cid-version"))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"Hash":"bafytest123"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	cid, err := c.Add(context.Background(), "proof-1.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if cid != "bafytest123" {
		t.Errorf("Add CID = %q, want bafytest123", cid)
	}
}

func TestFilesLSFiltersJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"Entries":[{"Name":"proof-1.json"},{"Name":"proof-2.json"},{"Name":".keep"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	names, err := c.FilesLS(context.Background(), "/swarmpool/proofs")
	if err != nil {
		t.Fatalf("FilesLS: %v", err)
	}
	if len(names) != 2 || names[0] != "proof-1" || names[1] != "proof-2" {
		t.Errorf("FilesLS = %v, want [proof-1 proof-2]", names)
	}
}

func TestPublishSnapshotSequencesCalls(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		w.WriteHeader(http.StatusOK)
		if r.URL.Path == "/api/v0/add" {
			w.Write([]byte(`{"Hash":"cid123"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	cid, err := c.PublishSnapshot(context.Background(), []byte(`{"a":1}`), "/swarmledger/epochs", "epoch-0001")
	if err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}
	if cid != "cid123" {
		t.Errorf("cid = %q, want cid123", cid)
	}

	want := []string{"/api/v0/add", "/api/v0/files/rm", "/api/v0/files/cp", "/api/v0/pin/add"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i, w := range want {
		if calls[i] != w {
			t.Errorf("call %d = %s, want %s", i, calls[i], w)
		}
	}
}
