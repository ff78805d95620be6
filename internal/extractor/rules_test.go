package extractor

import (
	"testing"

	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestExtractWithRules(t *testing.T) {
	for _, tt := range []struct {
		name          string
		input         string
		manufacturer  string
		want          productstore.Attributes
		minConfidence float64
	}{
		{
			name:  "full name with line, series and scale",
			input: "[굿스마일컴퍼니] POP UP PARADE 귀멸의 칼날 카마도 탄지로",
			want: productstore.Attributes{
				Series:       "귀멸의 칼날",
				Character:    "카마도 탄지로",
				Manufacturer: "굿스마일컴퍼니",
				ProductLine:  "POP UP PARADE",
			},
			minConfidence: 0.8,
		},
		{
			name:  "scale figure with alias spelling",
			input: "블루아카이브 미사키 바니 Ver. 1/7 스케일 피규어 (굿스마일)",
			want: productstore.Attributes{
				Series:       "블루 아카이브",
				Character:    "미사키",
				Manufacturer: "굿스마일컴퍼니",
				Scale:        "1/7",
				Version:      "바니 Ver.",
			},
			minConfidence: 0.8,
		},
		{
			name:  "non-scale prize figure",
			input: "반프레스토 원피스 GRANDISTA 몽키 D 루피 논스케일",
			want: productstore.Attributes{
				Series:       "원피스",
				Character:    "몽키 D 루피",
				Manufacturer: "반프레스토",
				Scale:        "non-scale",
				ProductLine:  "GRANDISTA",
			},
			minConfidence: 0.8,
		},
		{
			name:          "opaque name resolves nothing",
			input:         "AB",
			want:          productstore.Attributes{},
			minConfidence: 0.1,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, confidence := ExtractWithRules(tt.input, tt.manufacturer)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("attributes mismatch (-want +got):\n%s", diff)
			}
			require.GreaterOrEqual(t, confidence, tt.minConfidence)
			require.LessOrEqual(t, confidence, 1.0)
		})
	}
}

func TestExtractWithRulesNoiseStripping(t *testing.T) {
	attrs, _ := ExtractWithRules("[2025년12월 입고예정] 넨도로이드 장송의 프리렌 슈타르크 2345", "")
	require.Equal(t, "넨도로이드", attrs.ProductLine)
	require.Equal(t, "장송의 프리렌", attrs.Series)
	// The stock tag and trailing product code never leak into the character.
	require.Equal(t, "슈타르크", attrs.Character)
}

func TestExtractWithRulesManufacturerFallback(t *testing.T) {
	// Listing metadata fills in when the name itself carries no maker.
	attrs, _ := ExtractWithRules("주술회전 고죠 사토루 1/7", "(주)맥스팩토리")
	require.Equal(t, "맥스팩토리", attrs.Manufacturer)

	attrs, _ = ExtractWithRules("주술회전 고죠 사토루 1/7", "Unknown Maker Co.")
	require.Equal(t, "Unknown Maker Co.", attrs.Manufacturer)
}

func TestExtractWithRulesConfidenceLadder(t *testing.T) {
	// Line keyword boosts the ladder value.
	_, weak := ExtractWithRules("AB", "")
	require.InDelta(t, 0.1, weak, 1e-9)

	_, boosted := ExtractWithRules("figma 무언가", "")
	require.Greater(t, boosted, weak)
}
