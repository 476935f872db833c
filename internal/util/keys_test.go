package util

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"
)

func TestHashIDsOrderInsensitive(t *testing.T) {
	a := HashIDs([]int64{3, 1, 2})
	b := HashIDs([]int64{1, 2, 3})
	if a != b {
		t.Fatalf("order changed hash: %s vs %s", a, b)
	}
	if c := HashIDs([]int64{1, 2, 4}); c == a {
		t.Fatalf("different set produced the same hash %s", c)
	}
}

func TestHashIDsFormat(t *testing.T) {
	sum := sha1.Sum([]byte("1, 2, 3"))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))
	if got := HashIDs([]int64{2, 3, 1}); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
	if got := HashUIDs([]uint64{3, 2, 1}); got != want {
		t.Fatalf("unsigned: got %s want %s", got, want)
	}
	if HashIDs(nil) != "" {
		t.Fatalf("empty set should hash to empty string")
	}
}

func TestHashIDsDoesNotMutateInput(t *testing.T) {
	in := []int64{3, 1, 2}
	_ = HashIDs(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestEscapeGlob(t *testing.T) {
	cases := map[string]string{
		"plain":     "plain",
		"a*b":       `a\*b`,
		"q?[x]":     `q\?\[x\]`,
		`back\`:     `back\\`,
		"user.{0}.": "user.{0}.",
	}
	for in, want := range cases {
		if got := EscapeGlob(in); got != want {
			t.Fatalf("EscapeGlob(%q) = %q want %q", in, got, want)
		}
	}
}
