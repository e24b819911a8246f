package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs.Logf("auth/static-token: stored=%q input=%q", tc.stored, tc.input)
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestForToken(t *testing.T) {
	testlog.Start(t)
	if _, ok := ForToken("  ").(Open); !ok {
		t.Fatalf("blank token should select Open")
	}
	v := ForToken(" s3cret ")
	if err := v.Validate("s3cret"); err != nil {
		t.Fatalf("trimmed token rejected: %v", err)
	}
	if err := v.Validate(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "bearer", target: "/ws", header: "Bearer abc", want: "abc"},
		{name: "bearer case", target: "/ws", header: "bearer  abc ", want: "abc"},
		{name: "query", target: "/ws?token=q1", want: "q1"},
		{name: "non bearer falls back", target: "/ws?token=q2", header: "Basic Zm9v", want: "q2"},
		{name: "none", target: "/ws", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := TokenFromRequest(r); got != tc.want {
				t.Fatalf("token=%q want %q", got, tc.want)
			}
		})
	}

	h := http.Header{}
	SetBearer(h, "")
	if h.Get("Authorization") != "" {
		t.Fatalf("empty token should not set a header")
	}
	SetBearer(h, "xyz")
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header = h
	if got := TokenFromRequest(r); got != "xyz" {
		t.Fatalf("SetBearer round trip got %q", got)
	}
}

func TestMiddleware(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", Middleware(StaticToken{Token: "abc"}), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=nope", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d want 204", w.Code)
	}
}
