package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestFileToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	ft := NewFileToken(path)

	tok, err := ft.Token()
	if err != nil || tok != "" {
		t.Fatalf("Token() on missing file = %q, %v, want empty and no error", tok, err)
	}

	if err := ft.SetToken("abc"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}

	// written elsewhere, e.g. by a login in another process
	if err := os.WriteFile(path, []byte("  xyz \n"), 0600); err != nil {
		t.Fatal(err)
	}
	if tok, _ := ft.Token(); tok != "xyz" {
		t.Errorf("Token() = %q, want re-read value xyz", tok)
	}
}

func TestStaticToken(t *testing.T) {
	st := NewStaticToken("a")
	if tok, _ := st.Token(); tok != "a" {
		t.Errorf("Token() = %q", tok)
	}
	_ = st.SetToken("b")
	if tok, _ := st.Token(); tok != "b" {
		t.Errorf("Token() after SetToken = %q", tok)
	}
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	tests := []struct {
		name        string
		token       string
		wantErr     bool
		wantSubject string
		wantExp     time.Time
	}{
		{
			name:        "subject and expiry",
			token:       signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()}),
			wantSubject: "user-1",
			wantExp:     exp,
		},
		{
			name:  "no expiry",
			token: signedToken(t, jwt.MapClaims{"sub": "user-2"}),
			// zero ExpiresAt
			wantSubject: "user-2",
		},
		{name: "opaque token", token: "not-a-jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := InspectToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InspectToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if info.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", info.Subject, tt.wantSubject)
			}
			if !info.ExpiresAt.Equal(tt.wantExp) {
				t.Errorf("ExpiresAt = %v, want %v", info.ExpiresAt, tt.wantExp)
			}
		})
	}
}

func TestTokenInfo_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		info TokenInfo
		want bool
	}{
		{name: "future", info: TokenInfo{ExpiresAt: now.Add(time.Minute)}, want: false},
		{name: "past", info: TokenInfo{ExpiresAt: now.Add(-time.Minute)}, want: true},
		{name: "no expiry", info: TokenInfo{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
