package cli

import (
	"strings"
	"testing"
)

func TestParseClasses(t *testing.T) {
	cases := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"cat,dog", []string{"cat", "dog"}, false},
		{" cat , dog ", []string{"cat", "dog"}, false},
		{"cat,,dog", []string{"cat", "dog"}, false},
		{"solo", []string{"solo"}, false},
		{"", nil, true},
		{",,,", nil, true},
		{"cat,Cat", nil, true},
		{"a,b,c,d,e,f,g,h,i,j", strings.Split("a,b,c,d,e,f,g,h,i,j", ","), false},
		{"a,b,c,d,e,f,g,h,i,j,k", nil, true},
	}
	for _, c := range cases {
		got, err := parseClasses(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseClasses(%q) accepted %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClasses(%q): %v", c.in, err)
			continue
		}
		if len(got) != len(c.want) {
			t.Errorf("parseClasses(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("parseClasses(%q) = %v, want %v", c.in, got, c.want)
				break
			}
		}
	}
}
