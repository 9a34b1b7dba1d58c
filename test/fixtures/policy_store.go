// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// PolicyDocument mirrors the remote store's policy document shape for
// building test scenarios.
type PolicyDocument struct {
	IsLocked        bool             `json:"isLocked"`
	ScreenTime      ScreenTime       `json:"screenTime"`
	Apps            []AppRule        `json:"apps"`
	Contacts        []ContactRule    `json:"contacts"`
	Geofences       []map[string]any `json:"geofences"`
	RequestLocation bool             `json:"requestLocation"`
}

// ScreenTime is the document's screen-time budget leaf.
type ScreenTime struct {
	DailyLimitMinutes int `json:"dailyLimitMinutes"`
	UsedMinutesToday  int `json:"usedMinutesToday"`
}

// AppRule is the document's per-app rule leaf.
type AppRule struct {
	PackageID         string `json:"packageId"`
	DisplayName       string `json:"displayName"`
	Blocked           bool   `json:"blocked"`
	DailyLimitMinutes int    `json:"dailyLimitMinutes"`
}

// ContactRule is the document's contact rule leaf.
type ContactRule struct {
	ContactID   string `json:"contactId"`
	PhoneNumber string `json:"phoneNumber"`
	Allowed     bool   `json:"allowed"`
}

// FakePolicyStore is an in-memory stand-in for the remote policy store.
// It serves the policy document on GET and records every device write.
type FakePolicyStore struct {
	mu     sync.Mutex
	doc    PolicyDocument
	writes map[string][]json.RawMessage
	server *httptest.Server
}

// NewFakePolicyStore starts a fake store serving the given document.
func NewFakePolicyStore(doc PolicyDocument) *FakePolicyStore {
	f := &FakePolicyStore{
		doc:    doc,
		writes: make(map[string][]json.RawMessage),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the store's base URL.
func (f *FakePolicyStore) URL() string {
	return f.server.URL
}

// Close shuts the store down.
func (f *FakePolicyStore) Close() {
	f.server.Close()
}

// SetDocument replaces the served policy document.
func (f *FakePolicyStore) SetDocument(doc PolicyDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc = doc
}

// Document returns the currently served document.
func (f *FakePolicyStore) Document() PolicyDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

// Writes returns every body written to the given leaf ("status",
// "usage", "location", "locate", "flags"), oldest first.
func (f *FakePolicyStore) Writes(leaf string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]json.RawMessage, len(f.writes[leaf]))
	copy(out, f.writes[leaf])
	return out
}

// LastWrite decodes the most recent write to the given leaf into v.
// Returns false when the leaf has never been written.
func (f *FakePolicyStore) LastWrite(leaf string, v any) bool {
	writes := f.Writes(leaf)
	if len(writes) == 0 {
		return false
	}
	return json.Unmarshal(writes[len(writes)-1], v) == nil
}

func (f *FakePolicyStore) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(f.doc)

	case http.MethodPut:
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		leaf := r.URL.Path[lastSlash(r.URL.Path)+1:]
		f.writes[leaf] = append(f.writes[leaf], body)

		// A locate clear is reflected back into the document, like the
		// real store does.
		if leaf == "locate" {
			f.doc.RequestLocation = false
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
