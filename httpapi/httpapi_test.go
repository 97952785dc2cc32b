package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okiliz/cachefront"
	"github.com/okiliz/cachefront/httpapi"
	"github.com/okiliz/cachefront/memory"
)

type entryPayload struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func startAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.New(memory.New[[]byte]()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestEntryLifecycle(t *testing.T) {
	srv := startAPI(t)

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	put := doJSON(t, http.MethodPut, srv.URL+"/v1/entries/greeting", entryPayload{
		Key:       "greeting",
		Value:     []byte("hello"),
		ExpiresAt: expiry,
	})
	put.Body.Close()
	if put.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want 204", put.StatusCode)
	}

	get := doJSON(t, http.MethodGet, srv.URL+"/v1/entries/greeting", nil)
	defer get.Body.Close()
	if get.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", get.StatusCode)
	}
	var entry entryPayload
	if err := json.NewDecoder(get.Body).Decode(&entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if string(entry.Value) != "hello" || !entry.ExpiresAt.Equal(expiry) {
		t.Fatalf("GET entry = %+v, want stored payload", entry)
	}

	del := doJSON(t, http.MethodDelete, srv.URL+"/v1/entries/greeting", nil)
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", del.StatusCode)
	}

	missing := doJSON(t, http.MethodGet, srv.URL+"/v1/entries/greeting", nil)
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want 404", missing.StatusCode)
	}
}

func TestMetaEndpoints(t *testing.T) {
	srv := startAPI(t)

	for _, key := range []string{"a", "b"} {
		resp := doJSON(t, http.MethodPut, srv.URL+"/v1/entries/"+key, entryPayload{Key: key, Value: []byte(key)})
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("PUT %q status = %d, want 204", key, resp.StatusCode)
		}
	}

	meta := doJSON(t, http.MethodGet, srv.URL+"/v1/entries/a/meta", nil)
	defer meta.Body.Close()
	if meta.StatusCode != http.StatusOK {
		t.Fatalf("GET meta status = %d, want 200", meta.StatusCode)
	}
	var single cachefront.EntryMeta
	if err := json.NewDecoder(meta.Body).Decode(&single); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if single.Key != "a" || !single.ExpiresAt.IsZero() {
		t.Fatalf("meta = %+v, want key %q without expiry", single, "a")
	}

	list := doJSON(t, http.MethodGet, srv.URL+"/v1/entries", nil)
	defer list.Body.Close()
	var metas []cachefront.EntryMeta
	if err := json.NewDecoder(list.Body).Decode(&metas); err != nil {
		t.Fatalf("decode meta list: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("meta list has %d entries, want 2", len(metas))
	}

	cleared := doJSON(t, http.MethodDelete, srv.URL+"/v1/entries", nil)
	cleared.Body.Close()
	if cleared.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE all status = %d, want 204", cleared.StatusCode)
	}

	list = doJSON(t, http.MethodGet, srv.URL+"/v1/entries", nil)
	defer list.Body.Close()
	metas = nil
	if err := json.NewDecoder(list.Body).Decode(&metas); err != nil {
		t.Fatalf("decode meta list: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("meta list after clear has %d entries, want 0", len(metas))
	}
}

func TestMissingMetaIs404(t *testing.T) {
	srv := startAPI(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/entries/nope/meta", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET meta status = %d, want 404", resp.StatusCode)
	}
}
