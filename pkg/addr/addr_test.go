package addr

import "testing"

func TestStringFormat(t *testing.T) {
	a := Addr(0x400000)
	got := a.String()
	want := "0x0000000000400000"
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if len(got) != 18 {
		t.Fatalf("String() length = %d, want 18", len(got))
	}
}

func TestRelativeRoundTrip(t *testing.T) {
	base := Addr(0x555555554000)
	abs := FromRelative(base, 0x1149)
	if abs.Relative(base) != 0x1149 {
		t.Fatalf("Relative() = %#x, want 0x1149", abs.Relative(base))
	}
}

func TestAlignDown(t *testing.T) {
	a := Addr(0x400003)
	aligned, off := a.AlignDown()
	if aligned != 0x400000 || off != 3 {
		t.Fatalf("AlignDown() = (%s, %d), want (0x400000, 3)", aligned, off)
	}
}

func TestWordByteRoundTrip(t *testing.T) {
	w := Word(0x1122334455667788)
	b := w.Bytes()
	got := WordFromBytes(b)
	if got != w {
		t.Fatalf("WordFromBytes(Bytes()) = %#x, want %#x", got, w)
	}
}

func TestWithLowByte(t *testing.T) {
	w := Word(0x1122334455667788)
	patched := w.WithLowByte(0xCC)
	if patched.LowByte() != 0xCC {
		t.Fatalf("LowByte() = %#x, want 0xcc", patched.LowByte())
	}
	if patched&^0xFF != w&^0xFF {
		t.Fatalf("WithLowByte modified non-low bytes: %#x vs %#x", patched, w)
	}
}
