package extraction

import "testing"

func TestNormalizeMerchant(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name untouched", "스타벅스", "스타벅스"},
		{"corporate prefix stripped", "(주)스타벅스", "스타벅스"},
		{"corporate word stripped", "주식회사 이마트", "이마트"},
		{"english inc stripped", "Coupang Inc.", "Coupang"},
		{"branch suffix stripped", "스타벅스 강남점", "스타벅스"},
		{"jijeom suffix stripped", "커피빈 서초지점", "커피빈"},
		{"corporate and branch", "(주)스타벅스 역삼점", "스타벅스"},
		{"parenthetical removed", "커피빈 (Coffee Bean) 서초지점", "커피빈"},
		{"dash detail dropped", "배달의민족 - 주문결제", "배달의민족"},
		{"slash detail dropped", "GS25 / 편의점결제", "GS25"},
		{"empty input", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeMerchant(tc.input)
			if got != tc.want {
				t.Fatalf("NormalizeMerchant(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
