package client

import "testing"

func TestParsePairs(t *testing.T) {
	tests := []struct {
		in      string
		want    []InputLink
		wantErr bool
	}{
		{"1:2", []InputLink{{FromID: 1, ToID: 2}}, false},
		{" 1:2 , 2 : 3 ", []InputLink{{FromID: 1, ToID: 2}, {FromID: 2, ToID: 3}}, false},
		{"18446744073709551615:0", []InputLink{{FromID: 18446744073709551615, ToID: 0}}, false},
		{"", nil, true},
		{"1:", nil, true},
		{"-1:2", nil, true},
		{"1:2,", nil, true},
		{"18446744073709551616:1", nil, true},
	}
	for _, tt := range tests {
		got, err := ParsePairs(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePairs(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("ParsePairs(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParsePairs(%q)[%d] = %v, want %v", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
