package cache

import (
	"errors"
	"testing"
	"time"
)

func TestLocal_TTLBoundary(t *testing.T) {
	l := newLocal(time.Second, time.Minute)
	l.set("k", []byte(`{"x":1}`), 200*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	if _, ok := l.get("k"); !ok {
		t.Fatal("entry should be retrievable before its TTL")
	}

	time.Sleep(200 * time.Millisecond)
	if _, ok := l.get("k"); ok {
		t.Fatal("entry should be absent after its TTL")
	}
}

func TestLocal_DefaultTTL(t *testing.T) {
	l := newLocal(3*time.Second, time.Minute)
	l.set("k", []byte("1"), 0)

	e, ok := l.entry("k")
	if !ok {
		t.Fatal("entry not found")
	}
	if ttl := e.TTL(); ttl <= 0 || ttl > 3*time.Second {
		t.Errorf("TTL() = %v, want within default of 3s", ttl)
	}
}

func TestLocal_CopiesValues(t *testing.T) {
	l := newLocal(0, 0)
	in := []byte("abc")
	l.set("k", in, time.Minute)
	in[0] = 'X'

	out, _ := l.get("k")
	if string(out) != "abc" {
		t.Fatalf("stored value changed with caller's slice: %q", out)
	}
	out[1] = 'Y'

	again, _ := l.get("k")
	if string(again) != "abc" {
		t.Fatalf("stored value changed with returned slice: %q", again)
	}
}

func TestLocal_DeletePattern(t *testing.T) {
	l := newLocal(0, 0)
	for _, k := range []string{"calendar:events:A", "calendar:events:B", "invoices:list:C"} {
		l.set(k, []byte("1"), time.Minute)
	}

	n, err := l.deletePattern("calendar:*")
	if err != nil {
		t.Fatalf("deletePattern() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deletePattern() removed %d, want 2", n)
	}
	if _, ok := l.get("invoices:list:C"); !ok {
		t.Error("non-matching key was removed")
	}
	if l.len() != 1 {
		t.Errorf("len() = %d, want 1", l.len())
	}
}

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		glob  string
		key   string
		match bool
	}{
		{"calendar:*", "calendar:events:A", true},
		{"calendar:*", "xcalendar:events", false},
		{"invoices:list:*", "invoices:item:{}", false},
		{"invoices:?:x", "invoices:a:x", true},
		{"invoices:?:x", "invoices:ab:x", false},
		{`*"companyId":"c1"*`, `invoices:list:{"companyId":"c1","page":"1"}`, true},
		{`*"companyId":"c1"*`, `invoices:list:{"companyId":"c12"}`, false},
		{`a\*b`, "a*b", true},
		{`a\*b`, "axxb", false},
		{"a.b", "axb", false},
		{"{}", "{}", true},
		{"invoices:item:[ab]*", "invoices:item:a1", true},
		{"invoices:item:[ab]*", "invoices:item:c1", false},
		{"[^a]x", "bx", true},
		{"[^a]x", "ax", false},
		{"[a-c]", "b", true},
		{"[c-a]", "b", true},
		{"[a-c]", "d", false},
		{`[\]]`, "]", true},
		{"[]x", "x", false},
		{"[^]", "z", true},
		{"[ab", "a", true},
		{`\[ab]`, "[ab]", true},
	}

	for _, tt := range tests {
		t.Run(tt.glob+"|"+tt.key, func(t *testing.T) {
			re, err := globToRegexp(tt.glob)
			if err != nil {
				t.Fatalf("globToRegexp(%q) error = %v", tt.glob, err)
			}
			if got := re.MatchString(tt.key); got != tt.match {
				t.Errorf("match(%q, %q) = %v, want %v", tt.glob, tt.key, got, tt.match)
			}
		})
	}
}

func TestLocal_Increment(t *testing.T) {
	l := newLocal(0, 0)

	n, err := l.incrBy("hits", 1)
	if err != nil || n != 1 {
		t.Fatalf("incrBy() = %d, %v; want 1, nil", n, err)
	}
	n, _ = l.incrBy("hits", 4)
	if n != 5 {
		t.Errorf("incrBy() = %d, want 5", n)
	}

	l.set("word", []byte(`"x"`), time.Minute)
	if _, err := l.incrBy("word", 1); !errors.Is(err, ErrNotInteger) {
		t.Errorf("incrBy() on non-integer error = %v, want ErrNotInteger", err)
	}
}

func TestLocal_IncrementKeepsExpiry(t *testing.T) {
	l := newLocal(time.Hour, time.Minute)
	l.set("counter", []byte("1"), 2*time.Second)

	if _, err := l.incrBy("counter", 1); err != nil {
		t.Fatalf("incrBy() error = %v", err)
	}
	e, _ := l.entry("counter")
	if e.TTL() > 2*time.Second {
		t.Errorf("increment extended the TTL to %v", e.TTL())
	}
}
