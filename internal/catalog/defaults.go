package catalog

// soldout markers shared by every Cafe24 storefront skin we monitor
var cafe24SoldoutSelectors = []string{
	`img[alt="품절"]`,
	"div.sold img",
}

// Defaults returns the built-in configuration for the five monitored shops.
func Defaults() []Catalog {
	return []Catalog{
		{
			Name:        "figurepresso",
			DisplayName: "피규어프레소",
			BaseURL:     "https://figurepresso.com",
			Categories: map[string]string{
				"preorder":      "/product/preorder.html?cate_no=24",
				"new_arrival":   "/product/list.html?cate_no=1669",
				"in_stock":      "/product/list.html?cate_no=25",
				"arriving_soon": "/product/list.html?cate_no=1449",
				"sale":          "/product/list.html?cate_no=1532",
			},
			Rules: Rules{
				ItemSelectors: []string{
					"ul.prdList li.xans-record-",
					"ul.prdList li[id^='anchorBoxId_']",
				},
				NameSelectors:     []string{"p.name a", "div.description a"},
				NameMode:          NameLastVisibleSpan,
				PlainSpecSelector: "ul.spec li span",
				SoldoutSelectors:  cafe24SoldoutSelectors,
				DetailLabels: map[string]DetailField{
					"원작명": DetailSeriesHint,
					"제조사": DetailManufacturer,
					"코드":  DetailJANCode,
					"크기":  DetailSize,
					"재질":  DetailMaterial,
				},
			},
		},
		{
			Name:        "comicsart",
			DisplayName: "코믹스아트",
			BaseURL:     "https://comics-art.co.kr",
			Categories: map[string]string{
				"new_daily":        "/product/list.html?cate_no=3132",
				"title_list":       "/product/list.html?cate_no=1815",
				"arrival_schedule": "/product/list.html?cate_no=4023",
			},
			Rules: Rules{
				ItemSelectors: []string{
					"ul.prdList li[id^='anchorBoxId_']",
					"ul.prdList li.xans-record-",
				},
				NameSelectors:       []string{"strong.name a", "div.description a"},
				NameMode:            NameLastVisibleSpan,
				LabeledSpecSelector: "ul.spec li",
				LabelFields: map[string]ListField{
					"판매가": ListPrice,
					"제조사": ListManufacturer,
					"마감일": ListDeadline,
					"발매월": ListReleaseDate,
				},
				SoldoutSelectors: cafe24SoldoutSelectors,
				DetailLabels: map[string]DetailField{
					"제조사": DetailManufacturer,
				},
			},
		},
		{
			Name:        "maniahouse",
			DisplayName: "매니아하우스",
			BaseURL:     "https://maniahouse.co.kr",
			Categories: map[string]string{
				"preorder":  "/product/list.html?cate_no=45",
				"waiting":   "/product/list.html?cate_no=104",
				"in_stock":  "/product/list.html?cate_no=46",
				"nendoroid": "/product/list.html?cate_no=108",
				"figma":     "/product/list.html?cate_no=51",
			},
			Rules: Rules{
				ContainerSelector:   "div.xans-product-listnormal",
				ItemSelectors:       []string{"li.xans-record-"},
				NameSelectors:       []string{"a.name"},
				NameMode:            NameFirstSpan,
				IDFromHref:          true,
				LabeledSpecSelector: "ul.xans-product-listitem li",
				LabelFields: map[string]ListField{
					"판매가": ListPrice,
					"제조사": ListManufacturer,
				},
				ReviewCountSelector: "span[class*='likePrdCount']",
				SoldoutSelectors:    cafe24SoldoutSelectors,
				DetailLabels: map[string]DetailField{
					"제조사": DetailManufacturer,
					"JAN": DetailJANCode,
				},
			},
		},
		{
			Name:        "rabbits",
			DisplayName: "래빗츠컴퍼니",
			BaseURL:     "https://rabbits.kr",
			Categories: map[string]string{
				"preorder": "/category/예약상품/24/",
				"in_stock": "/category/입고완료/77/",
				"by_title": "/category/작품별/196/",
				"goods":    "/category/굿즈/253/",
			},
			Rules: Rules{
				ItemSelectors: []string{
					"ul.prdList li[id^='anchorBoxId_']",
					"ul.prdList li.xans-record-",
				},
				NameSelectors:     []string{"p.name a"},
				NameMode:          NameDirectText,
				PriceFromDataAttr: true,
				PlainSpecSelector: "ul.spec li span",
				SoldoutSelectors:  cafe24SoldoutSelectors,
				BonusKeywords:     []string{"특전포함", "특전증정"},
				DetailLabels: map[string]DetailField{
					"제조사": DetailManufacturer,
					"바코드": DetailJANCode,
					"사양":  DetailMaterial,
					"크기":  DetailSize,
				},
			},
		},
		{
			Name:        "ttabbaemall",
			DisplayName: "따빼몰",
			BaseURL:     "https://ttabbaemall.co.kr",
			Categories: map[string]string{
				"new_reservation": "/product/list.html?cate_no=24",
				"new_arrival":     "/product/list.html?cate_no=23",
				"anime_figure":    "/product/list.html?cate_no=25",
				"goodsmile":       "/product/list.html?cate_no=27",
			},
			Rules: Rules{
				ItemSelectors: []string{
					"ul.prdList li[id^='anchorBoxId_']",
					"ul.prdList li.xans-record-",
				},
				NameSelectors:     []string{"p.name a"},
				NameMode:          NameLastVisibleSpan,
				PriceFromDataAttr: true,
				PriceRelSelector:  `li[rel="판매가"]`,
				PlainSpecSelector: "ul.spec li span",
				DeadlineFromSpec:  true,
				SoldoutSelectors:  cafe24SoldoutSelectors,
				DetailLabels: map[string]DetailField{
					"제조사":   DetailManufacturer,
					"JAN코드": DetailJANCode,
					"상품 소재": DetailMaterial,
					"크기":    DetailSize,
					"상품 설명": DetailDescription,
				},
			},
		},
	}
}

// ByName returns the catalog with the given name from Defaults.
func ByName(name string) (Catalog, bool) {
	for _, c := range Defaults() {
		if c.Name == name {
			return c, true
		}
	}
	return Catalog{}, false
}
