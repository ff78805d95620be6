package extractor

import (
	"regexp"
	"strings"

	"github.com/moyedx3/figure-scrapper/internal/productstore"
)

var (
	scaleRe    = regexp.MustCompile(`(?i)1/(\d+)\s*(?:스케일)?`)
	nonScaleRe = regexp.MustCompile(`논\s*스케일`)
)

type linePattern struct {
	re   *regexp.Regexp
	name string
}

// Product lines, more specific first. A line keyword is a strong signal:
// it pins the manufacturer's naming convention for the rest of the name.
var productLines = []linePattern{
	{regexp.MustCompile(`(?i)POP\s*UP\s*PARADE`), "POP UP PARADE"},
	{regexp.MustCompile(`(?i)HELLO!\s*GOOD\s*SMILE`), "HELLO! GOOD SMILE"},
	{regexp.MustCompile(`(?i)Huggy\s*Good\s*Smile|허기\s*굿스마일`), "Huggy Good Smile"},
	{regexp.MustCompile(`(?i)ARTFX\s*J`), "ARTFX J"},
	{regexp.MustCompile(`(?i)ARTFX`), "ARTFX"},
	{regexp.MustCompile(`(?i)넨도로이드|nendoroid`), "넨도로이드"},
	{regexp.MustCompile(`(?i)figma`), "figma"},
	{regexp.MustCompile(`(?i)S\.H\.\s*Figuarts|figuarts`), "S.H.Figuarts"},
	{regexp.MustCompile(`(?i)GRANDISTA|그랜디스타`), "GRANDISTA"},
	{regexp.MustCompile(`(?i)룩업|Lookup|Look\s*Up`), "Lookup"},
	{regexp.MustCompile(`(?i)Trio-Try-iT`), "Trio-Try-iT"},
	{regexp.MustCompile(`(?i)누들\s*스토퍼|Noodle\s*Stopper`), "Noodle Stopper"},
	{regexp.MustCompile(`오히루네코`), "오히루네코"},
	{regexp.MustCompile(`(?i)PalVerse`), "PalVerse"},
	{regexp.MustCompile(`(?i)프레임\s*암즈|Frame\s*Arms`), "Frame Arms"},
	{regexp.MustCompile(`쵸코푸니`), "쵸코푸니"},
	{regexp.MustCompile(`페탓토`), "페탓토"},
	{regexp.MustCompile(`G\.E\.M\.`), "G.E.M."},
	{regexp.MustCompile(`(?i)Q\s*posket`), "Q posket"},
}

// knownManufacturers maps observed spellings to a canonical form.
var knownManufacturers = map[string]string{
	"반프레스토":       "반프레스토",
	"메가하우스":       "메가하우스",
	"굿스마일컴퍼니":     "굿스마일컴퍼니",
	"굿스마일":        "굿스마일컴퍼니",
	"굿스마일아츠상하이":   "굿스마일 아츠 상하이",
	"굿스마일 아츠 상하이": "굿스마일 아츠 상하이",
	"코토부키야":       "코토부키야",
	"후류":          "후류",
	"세가":          "세가",
	"부시로드":        "부시로드",
	"클레이넬":        "클레이넬",
	"리보스":         "리보스",
	"미토스":         "미토스",
	"반다이":         "반다이",
	"타카라토미":       "타카라토미",
	"유니온 크리에이티브":  "유니온 크리에이티브",
	"맥스팩토리":       "맥스팩토리",
	"알터":          "알터",
	"프리잉":         "프리잉",
	"아쿠아마린":       "아쿠아마린",
	"오키토이즈":       "오키토이즈",
	"플레어":         "플레어",
	"하비사쿠라":       "하비사쿠라",
	"시스템서비스":      "시스템서비스",
}

// knownSeries maps observed spellings of a franchise to a canonical form.
var knownSeries = map[string]string{
	"귀멸의 칼날":      "귀멸의 칼날",
	"원신":          "원신",
	"블루 아카이브":     "블루 아카이브",
	"블루아카이브":      "블루 아카이브",
	"하이큐":         "하이큐!!",
	"하이큐!!":       "하이큐!!",
	"오버로드":        "오버로드",
	"스파이 패밀리":     "스파이 패밀리",
	"SPY×FAMILY":  "스파이 패밀리",
	"홀로라이브":       "홀로라이브",
	"던전밥":         "던전밥",
	"네코파라":        "네코파라",
	"블루록":         "블루록",
	"벽람항로":        "벽람항로",
	"나루토":         "나루토",
	"나루토 질풍전":     "나루토 질풍전",
	"보컬로이드":       "보컬로이드",
	"북두의 권":       "북두의 권",
	"젠레스 존 제로":    "젠레스 존 제로",
	"승리의 여신: 니케":  "승리의 여신: 니케",
	"승리의 여신 니케":   "승리의 여신: 니케",
	"니케":          "승리의 여신: 니케",
	"페르소나5":       "페르소나5",
	"장송의 프리렌":     "장송의 프리렌",
	"앙상블 스타즈":     "앙상블 스타즈",
	"바람의 검심":      "바람의 검심",
	"투 러브 트러블":    "투 러브 트러블",
	"러브 라이브":      "러브 라이브",
	"에반게리온":       "에반게리온",
	"진격의 거인":      "진격의 거인",
	"원피스":         "원피스",
	"드래곤볼":        "드래곤볼",
	"주술회전":        "주술회전",
	"체인소 맨":       "체인소 맨",
	"나의 히어로 아카데미아": "나의 히어로 아카데미아",
	"리코리스 리코일":    "리코리스 리코일",
	"명일방주":        "명일방주",
	"프리큐어":        "프리큐어",
	"세일러문":        "세일러문",
	"소녀전선":        "소녀전선",
	"종말의 발키리":     "종말의 발키리",
	"명조":          "명조",
}

var (
	bracketRe  = regexp.MustCompile(`\[([^\]]+)\]`)
	parenMfrRe = regexp.MustCompile(`(\S+)\s*\(([A-Za-z][\w\s.&]+)\)`)

	versionRe = regexp.MustCompile(
		`(?i)(디럭스|deluxe|통상판?|standard|바니|bunny|호화판|limited|한정판?|재판)` +
			`\s*(ver\.?|판|version|에디션|edition)?`)
	specificVerRe = regexp.MustCompile(`(\S+)\s*[Vv]er\.?`)
)

// Listing-name decorations that carry no identity: stock tags, shipping
// notes, bundle markers.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[예약상품/[^\]]*\]`),
	regexp.MustCompile(`\[\d+년\d+월[^\]]*입고[^\]]*\]`),
	regexp.MustCompile(`\[\d+월[^\]]*입고[^\]]*\]`),
	regexp.MustCompile(`\(당일발송\)`),
	regexp.MustCompile(`\(\d+월\s*\d+주차\s*입고예정\)`),
	regexp.MustCompile(`\(\d+년\s*\d+월\s*발매\)`),
	regexp.MustCompile(`\[특가세일\]`),
	regexp.MustCompile(`\[독점유통\]`),
	regexp.MustCompile(`\[총판\]`),
	regexp.MustCompile(`특전포함|특전증정`),
	regexp.MustCompile(`\(한정/특전포함\)`),
	regexp.MustCompile(`\(캡슐\)`),
	regexp.MustCompile(`\(선택\)`),
	regexp.MustCompile(`\(굿즈\)`),
	regexp.MustCompile(`\(프라모델\)`),
	regexp.MustCompile(`\(공식\s*파트너샵\)`),
}

var noiseWords = []string{
	"스케일", "피규어", "figure", "No.", "L 사이즈", "사이즈",
	"Illustrated by", "by", "Vol.", "단품",
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	trailingNumRe = regexp.MustCompile(`\b\d{4,}\s*$`)
	noDotNumRe    = regexp.MustCompile(`No\.\s*\d+`)
	bracketAnyRe  = regexp.MustCompile(`\[[^\]]*\]`)
	parenAnyRe    = regexp.MustCompile(`\([^)]*\)`)
)

func stripNoise(name string) string {
	cleaned := name
	for _, re := range noisePatterns {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))
}

func extractScale(name string) string {
	if m := scaleRe.FindStringSubmatch(name); m != nil {
		return "1/" + m[1]
	}
	if nonScaleRe.MatchString(name) {
		return "non-scale"
	}
	return ""
}

func extractProductLine(name string) string {
	for _, line := range productLines {
		if line.re.MatchString(name) {
			return line.name
		}
	}
	return ""
}

func extractManufacturer(name, existing string) string {
	for _, m := range bracketRe.FindAllStringSubmatch(name, -1) {
		if canonical, ok := knownManufacturers[strings.TrimSpace(m[1])]; ok {
			return canonical
		}
	}
	for _, m := range parenMfrRe.FindAllStringSubmatch(name, -1) {
		if canonical, ok := knownManufacturers[m[1]]; ok {
			return canonical
		}
	}
	for key, canonical := range knownManufacturers {
		if strings.Contains(name, key) {
			return canonical
		}
	}
	if existing != "" {
		for key, canonical := range knownManufacturers {
			if strings.Contains(existing, key) {
				return canonical
			}
		}
		return existing
	}
	return ""
}

func extractSeries(name string) string {
	for _, m := range bracketRe.FindAllStringSubmatch(name, -1) {
		if canonical, ok := knownSeries[strings.TrimSpace(m[1])]; ok {
			return canonical
		}
	}
	for key, canonical := range knownSeries {
		if strings.Contains(name, key) {
			return canonical
		}
	}
	return ""
}

func extractVersion(name string) string {
	if m := specificVerRe.FindString(name); m != "" {
		ver := strings.TrimSpace(m)
		// A bare two-letter fragment before "Ver." is usually part of the
		// character name, not an edition.
		if len(ver) > 3 {
			return ver
		}
	}
	if m := versionRe.FindString(name); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// extractCharacter strips every recognized component and takes the residue
// as the character name.
func extractCharacter(name, series, productLine string) string {
	cleaned := stripNoise(name)

	cleaned = bracketAnyRe.ReplaceAllString(cleaned, " ")
	cleaned = parenAnyRe.ReplaceAllString(cleaned, " ")

	if productLine != "" {
		for _, line := range productLines {
			cleaned = line.re.ReplaceAllString(cleaned, " ")
		}
	}

	cleaned = scaleRe.ReplaceAllString(cleaned, " ")
	cleaned = nonScaleRe.ReplaceAllString(cleaned, " ")
	cleaned = versionRe.ReplaceAllString(cleaned, " ")
	cleaned = specificVerRe.ReplaceAllString(cleaned, " ")

	for key := range knownManufacturers {
		cleaned = strings.ReplaceAll(cleaned, key, " ")
	}
	if series != "" {
		for key, canonical := range knownSeries {
			if canonical == series {
				cleaned = strings.ReplaceAll(cleaned, key, " ")
			}
		}
	}

	for _, word := range noiseWords {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(word))
		cleaned = re.ReplaceAllString(cleaned, " ")
	}

	cleaned = trailingNumRe.ReplaceAllString(cleaned, "")
	cleaned = noDotNumRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))

	if len([]rune(cleaned)) > 2 {
		return cleaned
	}
	return ""
}

// ExtractWithRules derives normalized fields from a raw display name using
// the keyword tables above. Confidence scales with how many of the four
// identity-bearing fields resolved, with a boost when a product line keyword
// matched.
func ExtractWithRules(name, existingManufacturer string) (productstore.Attributes, float64) {
	scale := extractScale(name)
	line := extractProductLine(name)
	manufacturer := extractManufacturer(name, existingManufacturer)
	series := extractSeries(name)
	version := extractVersion(name)
	character := extractCharacter(name, series, line)

	attrs := productstore.Attributes{
		Series:       series,
		Character:    character,
		Manufacturer: manufacturer,
		Scale:        scale,
		Version:      version,
		ProductLine:  line,
	}

	filled := 0
	for _, v := range []string{series, character, manufacturer, scale} {
		if v != "" {
			filled++
		}
	}
	var confidence float64
	switch {
	case filled >= 3:
		confidence = 0.8
	case filled >= 2:
		confidence = 0.6
	case filled >= 1:
		confidence = 0.4
	default:
		confidence = 0.1
	}
	if line != "" {
		confidence = min(confidence+0.1, 1.0)
	}
	return attrs, confidence
}
