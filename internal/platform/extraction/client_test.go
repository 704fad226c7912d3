package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func rawItems(t *testing.T, items ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestDecodeCandidatesDefensive(t *testing.T) {
	items := rawItems(t,
		`{"field":"Glucose","value":"95","units":"mg/dL","confidence":0.92}`,
		`{"field":"Sodium","value":140.5,"confidence":0.88}`, // numeric value is tolerated
		`{"value":"no field name"}`,                          // dropped
		`{"field":"WBC"}`,                                    // dropped: no value
		`{"field":42,"value":"bad field type"}`,              // dropped
		`"not an object"`,                                    // dropped
	)

	got := DecodeCandidates(items, zerolog.Nop())
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Field != "Glucose" || got[0].Units != "mg/dL" || got[0].Confidence != 0.92 {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[1].Field != "Sodium" || got[1].Value != "140.5" {
		t.Errorf("second candidate = %+v", got[1])
	}
}

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"field":"Hemoglobin","value":"13.2","confidence":0.95}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	got, err := c.ExtractText(context.Background(), "CBC results: Hgb 13.2")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if len(got) != 1 || got[0].Field != "Hemoglobin" {
		t.Fatalf("got %+v", got)
	}
}

func TestExtractTextServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	if _, err := c.ExtractText(context.Background(), "text"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
