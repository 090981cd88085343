package models

import "testing"

func TestPriceAmount(t *testing.T) {
	cases := []struct {
		display string
		want    int
		ok      bool
	}{
		{"€12,500", 12500, true},
		{"€11,000", 11000, true},
		{"12.500 EUR", 12500, true},
		{"€ 9 800", 9800, true},
		{"7500", 7500, true},
		{"price on request", 0, false},
		{"нет цены", 0, false},
		{"", 0, false},
	}

	for _, c := range cases {
		p := NewPrice(c.display)
		got, ok := p.Amount()
		if ok != c.ok {
			t.Fatalf("%q: expected ok=%v, got %v", c.display, c.ok, ok)
		}
		if got != c.want {
			t.Fatalf("%q: expected amount %d, got %d", c.display, c.want, got)
		}
	}
}

func TestPriceAmountCached(t *testing.T) {
	p := NewPrice("€12,500")
	if _, ok := p.Amount(); !ok {
		t.Fatalf("expected parseable price")
	}
	// Second call returns the cached value.
	got, ok := p.Amount()
	if !ok || got != 12500 {
		t.Fatalf("expected cached 12500, got %d (ok=%v)", got, ok)
	}
}

func TestPriceEqualComparesDisplay(t *testing.T) {
	a := NewPrice("€12,500")
	b := NewPrice("€12.500")
	if a.Equal(b) {
		t.Fatalf("differently formatted prices must not compare equal")
	}
	if !a.Equal(NewPrice(" €12,500 ")) {
		t.Fatalf("trimmed prices should compare equal")
	}
}

func TestDropBetween(t *testing.T) {
	drop, ok := DropBetween(NewPrice("€12,500"), NewPrice("€11,000"))
	if !ok {
		t.Fatalf("expected a drop")
	}
	if drop != 1500 {
		t.Fatalf("expected drop 1500, got %d", drop)
	}

	if _, ok := DropBetween(NewPrice("€11,000"), NewPrice("€12,500")); ok {
		t.Fatalf("price increase must not report a drop")
	}
	if _, ok := DropBetween(NewPrice("price on request"), NewPrice("€11,000")); ok {
		t.Fatalf("unparseable previous price must be excluded")
	}
	if _, ok := DropBetween(NewPrice("€12,500"), NewPrice("sold")); ok {
		t.Fatalf("unparseable current price must be excluded")
	}
}
