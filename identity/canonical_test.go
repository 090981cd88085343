package identity

import "testing"

func TestCanonicalLink(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/adv/5551234_bmw-320i-2015/", "https://www.bazaraki.com/adv/5551234_bmw-320i-2015/"},
		{"https://www.bazaraki.com/adv/5551234_bmw-320i-2015", "https://www.bazaraki.com/adv/5551234_bmw-320i-2015/"},
		{"https://WWW.Bazaraki.com/adv/5551234_bmw-320i-2015/?utm_source=feed", "https://www.bazaraki.com/adv/5551234_bmw-320i-2015/"},
		{"  /adv/777_audi-a4/#photos ", "https://www.bazaraki.com/adv/777_audi-a4/"},
		{"", ""},
	}

	for _, c := range cases {
		if got := CanonicalLink(c.in); got != c.want {
			t.Fatalf("CanonicalLink(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalLinkStable(t *testing.T) {
	link := CanonicalLink("/adv/5551234_bmw-320i-2015/")
	if CanonicalLink(link) != link {
		t.Fatalf("canonicalization must be idempotent")
	}
}
