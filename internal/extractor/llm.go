package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/productstore"
	"github.com/moyedx3/figure-scrapper/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

const defaultClassifierEndpoint = "https://api.anthropic.com"

const classifyPrompt = `이 일본 피규어/굿즈 상품명에서 구조화된 정보를 추출하세요.

상품명: %s
사이트: %s
카테고리: %s
%s
추출할 필드:
- series: 작품명 (애니메이션/게임/만화 제목). 한글 표기 우선.
- character_name: 캐릭터명. 한글 표기 우선.
- manufacturer: 제조사/브랜드명. 한글 표기 우선.
- scale: 스케일 (예: "1/7", "1/4", "non-scale")
- version: 에디션/버전 (예: "standard", "deluxe", "바니 ver.", "호화판"). 일반 버전이면 null.
- product_line: 상품 라인 (예: "POP UP PARADE", "figma", "넨도로이드", "ARTFX J")

없는 정보는 null로 반환하세요.

JSON으로만 응답하세요:
{"series": ..., "character_name": ..., "manufacturer": ..., "scale": ..., "version": ..., "product_line": ...}`

// pageContextLabels name detail-page fields in the prompt.
var pageContextLabels = map[catalog.DetailField]string{
	catalog.DetailSeriesHint:   "페이지 원작명",
	catalog.DetailManufacturer: "페이지 제조사",
	catalog.DetailJANCode:      "JAN/바코드",
	catalog.DetailSize:         "크기",
	catalog.DetailMaterial:     "재질/소재",
	catalog.DetailDescription:  "상품 설명",
}

// contextFieldOrder keeps prompt rendering deterministic.
var contextFieldOrder = []catalog.DetailField{
	catalog.DetailSeriesHint,
	catalog.DetailManufacturer,
	catalog.DetailJANCode,
	catalog.DetailSize,
	catalog.DetailMaterial,
	catalog.DetailDescription,
}

// MessagesClassifier talks to an Anthropic-compatible messages endpoint.
type MessagesClassifier struct {
	http  *resty.Client
	model string
}

type MessagesClassifierOptions struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func NewMessagesClassifier(opts MessagesClassifierOptions) *MessagesClassifier {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultClassifierEndpoint
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(opts.Endpoint)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("x-api-key", opts.APIKey)
	client.SetHeader("anthropic-version", "2023-06-01")

	restyutil.InstrumentClient(client, "extractor/classifier/http")

	return &MessagesClassifier{http: client, model: opts.Model}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type classifiedFields struct {
	Series        string `json:"series"`
	CharacterName string `json:"character_name"`
	Manufacturer  string `json:"manufacturer"`
	Scale         string `json:"scale"`
	Version       string `json:"version"`
	ProductLine   string `json:"product_line"`
}

func (c *MessagesClassifier) Classify(ctx context.Context, req ClassifyRequest) (productstore.Attributes, error) {
	prompt := fmt.Sprintf(classifyPrompt,
		req.Name, req.Catalog, req.Category, formatPageContext(req.PageSpecs))

	var parsed messagesResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(messagesRequest{
			Model:     c.model,
			MaxTokens: 256,
			Messages:  []message{{Role: "user", Content: prompt}},
		}).
		SetResult(&parsed).
		SetError(&parsed).
		Post("/v1/messages")
	if err != nil {
		return productstore.Attributes{}, err
	}
	if res.IsError() {
		if parsed.Error != nil {
			return productstore.Attributes{}, fmt.Errorf("classifier: %s", parsed.Error.Message)
		}
		return productstore.Attributes{}, fmt.Errorf("classifier: status %s", res.Status())
	}
	if len(parsed.Content) == 0 {
		return productstore.Attributes{}, fmt.Errorf("classifier: empty response")
	}

	text := strings.TrimSpace(parsed.Content[0].Text)
	// Some responses arrive wrapped in a markdown fence.
	if strings.HasPrefix(text, "```") {
		if _, rest, ok := strings.Cut(text, "\n"); ok {
			text = rest
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var fields classifiedFields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return productstore.Attributes{}, fmt.Errorf("classifier returned non-JSON answer: %w", err)
	}
	return productstore.Attributes{
		Series:       fields.Series,
		Character:    fields.CharacterName,
		Manufacturer: fields.Manufacturer,
		Scale:        fields.Scale,
		Version:      fields.Version,
		ProductLine:  fields.ProductLine,
	}, nil
}

func formatPageContext(specs map[catalog.DetailField]string) string {
	if len(specs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n상세 페이지 정보:\n")
	for _, field := range contextFieldOrder {
		value, ok := specs[field]
		if !ok || value == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", pageContextLabels[field], value)
	}
	return b.String()
}
