package types

import (
	"math/big"
	"testing"
)

func TestParseCoin(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "1", want: "1000000000000000000"},
		{input: "0.5", want: "500000000000000000"},
		{input: "12.000000000000000001", want: "12000000000000000001"},
		{input: "0.", want: "0"},
		{input: "", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "1.0000000000000000001", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCoin(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCoin(%q) should fail, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCoin(%q): %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseCoin(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCoin(t *testing.T) {
	tests := []struct {
		units string
		want  string
	}{
		{"0", "0"},
		{"1000000000000000000", "1"},
		{"500000000000000000", "0.5"},
		{"1", "0.000000000000000001"},
		{"2500000000000000000", "2.5"},
	}
	for _, tt := range tests {
		v, _ := new(big.Int).SetString(tt.units, 10)
		if got := FormatCoin(v); got != tt.want {
			t.Errorf("FormatCoin(%s) = %s, want %s", tt.units, got, tt.want)
		}
	}
	if got := FormatCoin(nil); got != "0" {
		t.Errorf("FormatCoin(nil) = %s, want 0", got)
	}
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits(" 42 ")
	if err != nil {
		t.Fatalf("ParseUnits: %v", err)
	}
	if v.Int64() != 42 {
		t.Errorf("ParseUnits = %s, want 42", v)
	}
	if _, err := ParseUnits("-5"); err == nil {
		t.Error("negative units should fail")
	}
	if _, err := ParseUnits("1.5"); err == nil {
		t.Error("fractional units should fail")
	}
}
