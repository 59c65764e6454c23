package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestMiddleware(t *testing.T) {
	const supplied = "6f1d8f8e-58c5-4b43-9c59-3c4b1f7d2a10"

	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{"none", "", false},
		{"valid uuid", supplied, true},
		{"garbage", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = From(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(Header, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("context id %q is not a uuid", seen)
			}
			if got := rec.Header().Get(Header); got != seen {
				t.Errorf("header = %q, context = %q", got, seen)
			}
			if (seen == tt.incoming) != tt.wantSame {
				t.Errorf("id = %q, incoming = %q, wantSame = %v", seen, tt.incoming, tt.wantSame)
			}
		})
	}
}

func TestFrom_Empty(t *testing.T) {
	if From(context.Background()) != "" {
		t.Error("expected empty id")
	}
}
