package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

func TestEncodeDecodeCursor_RoundTrip(t *testing.T) {
	mod := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c := Cursor{
		P:   "/data/orders.xlsx",
		S:   "Sheet1",
		Off: 40,
		Ps:  20,
		Mt:  mod.UnixNano(),
		C:   "State",
		Fv:  []string{"CA"},
		Fh:  FilterHash("State", []string{"CA"}),
	}
	tok, err := EncodeCursor(c)
	if err != nil {
		t.Fatalf("EncodeCursor error: %v", err)
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token contains non-url-safe chars: %q", tok)
	}
	out, err := DecodeCursor(tok)
	if err != nil {
		t.Fatalf("DecodeCursor error: %v", err)
	}
	if out.P != c.P || out.S != c.S || out.Off != c.Off || out.Ps != c.Ps || out.Fh != c.Fh || out.C != c.C || out.V != 1 {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, c)
	}
	if out.Stale(mod) {
		t.Fatalf("cursor should match its own mtime")
	}
	if !out.Stale(mod.Add(time.Second)) {
		t.Fatalf("cursor should be stale after the file changes")
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	cases := []string{
		"",
		"!!!",
		base64.RawURLEncoding.EncodeToString([]byte("not-json")),
		mustB64(`{"v":1}`),
		mustB64(`{"v":1,"p":"/a.xlsx","s":"","off":0,"ps":10}`),
		mustB64(`{"v":1,"p":"","s":"S","off":0,"ps":10}`),
		mustB64(`{"v":1,"p":"/a.xlsx","s":"S","off":-1,"ps":10}`),
		mustB64(`{"v":1,"p":"/a.xlsx","s":"S","off":0,"ps":0}`),
		mustB64(`{"v":1,"p":"/a.xlsx","s":"S","off":0,"ps":5,"c":"State","fv":["CA"],"fh":"forged"}`),
	}
	for i, tok := range cases {
		_, err := DecodeCursor(tok)
		if err == nil {
			t.Fatalf("case %d: expected error for token %q", i, tok)
		}
		if !errors.Is(err, mcperr.ErrCursorInvalid) {
			t.Fatalf("case %d: error %v does not wrap ErrCursorInvalid", i, err)
		}
	}
}

func TestFilterHash(t *testing.T) {
	if FilterHash("", nil) != "" {
		t.Fatalf("empty filter should hash to empty string")
	}
	a := FilterHash("State", []string{"CA", "NY"})
	if a != FilterHash("State", []string{"CA", "NY"}) {
		t.Fatalf("hash is not deterministic")
	}
	if a == FilterHash("State", []string{"CA"}) || a == FilterHash("City", []string{"CA", "NY"}) {
		t.Fatalf("different filters collided")
	}
}

func TestNextOffset(t *testing.T) {
	if got := NextOffset(-5, 10); got != 10 {
		t.Fatalf("NextOffset(-5,10) = %d", got)
	}
	if got := NextOffset(20, 0); got != 20 {
		t.Fatalf("NextOffset(20,0) = %d", got)
	}
}

func FuzzDecodeCursor(f *testing.F) {
	seeds := []string{
		"", "abc", mustB64(`{"v":1}`), mustB64(`{"p":"x"}`),
		mustB64(`{"v":1,"p":"/a.csv","s":"a","off":0,"ps":1}`),
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, token string) {
		_, _ = DecodeCursor(token)
	})
}

func mustB64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
