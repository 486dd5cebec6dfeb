package register

import (
	"errors"
	"testing"
)

func TestFromDWARF(t *testing.T) {
	cases := []struct {
		n    int
		want Register
	}{
		{6, Rbp},
		{15, R15},
		{0, Rax},
		{16, Rip},
	}
	for _, c := range cases {
		got, err := FromDWARF(c.n)
		if err != nil {
			t.Fatalf("FromDWARF(%d) error: %v", c.n, err)
		}
		if got != c.want {
			t.Fatalf("FromDWARF(%d) = %v, want %v", c.n, got, c.want)
		}
	}
}

func TestFromDWARFUnimplemented(t *testing.T) {
	_, err := FromDWARF(666)
	if err == nil {
		t.Fatal("expected error for DWARF register 666")
	}
	var unimpl *UnimplementedRegisterError
	if !errors.As(err, &unimpl) {
		t.Fatalf("error is not UnimplementedRegisterError: %v", err)
	}
}

func TestParseAndString(t *testing.T) {
	r, err := Parse("rbp")
	if err != nil || r != Rbp {
		t.Fatalf("Parse(rbp) = %v, %v", r, err)
	}
	if r.String() != "rbp" {
		t.Fatalf("String() = %q, want rbp", r.String())
	}
	if _, err := Parse("nope"); err == nil {
		t.Fatal("expected error for unknown register name")
	}
}
