package render

import "testing"

func TestPreprocess_Currency(t *testing.T) {
	cases := []struct{ in, want string }{
		{"We invest $1500000 at most", "We invest $1.5M at most."},
		{"A $2,000,000 round", "A $2M round."},
		{"Burn is $7500 a month", "Burn is $7.5K a month."},
		{"Seed of $250,000", "Seed of $250K."},
		{"Only $500 left", "Only $500 left."},
		{"$10,000,000 is too rich", "$10M is too rich."},
		// bare runs past seven digits are left for the voice to read raw
		{"$10000000 is too rich", "$10000000 is too rich."},
	}
	for _, c := range cases {
		if got := Preprocess(c.in); got != c.want {
			t.Errorf("Preprocess(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPreprocess_Punctuation(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Interesting...tell me more", "Interesting ... tell me more."},
		{"Revenue—real revenue—matters", "Revenue — real revenue — matters."},
		{"Too   many    spaces", "Too many spaces."},
		{"Already terminated!", "Already terminated!"},
		{"A question?", "A question?"},
		{"  ", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := Preprocess(c.in); got != c.want {
			t.Errorf("Preprocess(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
