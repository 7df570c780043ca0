package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/hotissueworker/helpers"
	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/logger"
	"sjsage522/hotissueworker/services/cache"
)

// CreateCrawlers creates the crawlers for the given site names; an empty list
// creates every shipped site
func CreateCrawlers(names []string, guard *cache.RateLimitGuard, loc *time.Location) ([]Crawler, error) {
	sites := SiteConfigs()

	selected := sites
	if len(names) > 0 {
		byName := make(map[string]SiteConfig, len(sites))
		for _, s := range sites {
			byName[s.Name] = s
		}
		selected = nil
		for _, name := range names {
			s, ok := byName[strings.TrimSpace(name)]
			if !ok {
				return nil, fmt.Errorf("unknown site %q", name)
			}
			selected = append(selected, s)
		}
	}

	log := logger.ForWorker()
	crawlers := make([]Crawler, 0, len(selected))
	for _, s := range selected {
		crawlers = append(crawlers, NewConfigurableCrawler(s, guard, loc))
		log.Debug().
			Str("crawler", s.Name).
			Str("domain", string(s.Domain)).
			Str("community", s.Community).
			Msg("Created crawler")
	}
	return crawlers, nil
}

// lastSegment returns the last path segment of a link, without its query
func lastSegment(link string) (string, error) {
	base := strings.Split(link, "?")[0]
	parts := strings.Split(strings.TrimRight(base, "/"), "/")
	return helpers.GetSplitPart(base, "/", len(parts)-1)
}

// queryParam builds an extractor reading a query parameter of the link
func queryParam(name string) IDExtractorFunc {
	return func(link string) (string, error) {
		u, err := url.Parse(link)
		if err != nil {
			return "", err
		}
		v := u.Query().Get(name)
		if v == "" {
			return "", fmt.Errorf("no %s in %s", name, link)
		}
		return v, nil
	}
}

// firstNumber keeps the first integer of a vote cell such as "12 - 3"
func firstNumber(selector string) CustomElementHandlerFunc {
	return func(s *goquery.Selection) string {
		text := strings.TrimSpace(s.Find(selector).First().Text())
		first, err := helpers.GetSplitPart(text, "-", 0)
		if err != nil {
			return text
		}
		return strings.TrimSpace(first)
	}
}

// attrOrText prefers an attribute (full timestamps live in title attributes)
func attrOrText(selector, attr string) CustomElementHandlerFunc {
	return func(s *goquery.Selection) string {
		el := s.Find(selector).First()
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
		return el.Text()
	}
}

var (
	dcinsideSelectors = Selectors{
		Row:          "tbody.listwrap2 tr.ub-content",
		RowFilter:    "[data-type='icon_notice'], .us-post--notice",
		Title:        "td.gall_tit a:not(.reply_numbox)",
		Link:         "td.gall_tit a:not(.reply_numbox)",
		Category:     "td.gall_subject",
		Writer:       "td.gall_writer",
		Date:         "td.gall_date",
		Views:        "td.gall_count",
		Recommend:    "td.gall_recommend",
		Content:      "div.write_div, div.writing_view_box",
		Images:       "div.write_div img",
		DetailDate:   "span.gall_date",
		DetailWriter: "span.nickname",
	}

	fmkoreaSelectors = Selectors{
		Row:        "table.bd_lst tbody tr",
		RowFilter:  ".notice",
		Title:      "td.title a",
		Link:       "td.title a",
		Category:   "td.cate a",
		Writer:     "td.author",
		Date:       "td.time",
		Views:      "td.m_no",
		Recommend:  "td.m_no_voted",
		Content:    "div.xe_content",
		Images:     "div.xe_content img",
		DetailDate: "div.top_area span.date",
	}

	ppomppuSelectors = Selectors{
		Row:       "table#revolution_main_table tr.baseList",
		RowFilter: ".title_bg, .list_notice",
		Title:     "a.baseList-title",
		Link:      "a.baseList-title",
		Category:  "span.baseList-category",
		Writer:    "a.baseList-name",
		Date:      "time.baseList-time",
		Views:     "td.baseList-views",
		Recommend: "td.baseList-rec",
		Content:   "td.board-contents, table.pic_bg td",
		Images:    "td.board-contents img, table.pic_bg img",
	}

	bobaedreamSelectors = Selectors{
		Row:       "table#boardlist tbody tr[itemtype='http://schema.org/Article']",
		RowFilter: ".best",
		Title:     "a.bsubject",
		Link:      "a.bsubject",
		Category:  "td.category",
		Writer:    "span.author",
		Date:      "td.date",
		Views:     "td.count",
		Recommend: "td.recomm",
		Content:   "div.bodyCont, div.bbs_content",
		Images:    "div.bodyCont img",
	}
)

// SiteConfigs returns the shipped boards
func SiteConfigs() []SiteConfig {
	return []SiteConfig{
		// Hot issues (hot_site)
		{
			Name:        "dcinside_realtimebest",
			Domain:      model.DomainHot,
			Community:   "1",
			ListURL:     "https://gall.dcinside.com/board/lists/?id=dcbest&page=%d",
			BaseURL:     "https://gall.dcinside.com",
			Selectors:   dcinsideSelectors,
			IDExtractor: queryParam("no"),
			MinViews:    30000,
			MaxPages:    10,
		},
		{
			Name:      "theqoo_hot",
			Domain:    model.DomainHot,
			Community: "2",
			ListURL:   "https://theqoo.net/hot?filter_mode=normal&page=%d",
			BaseURL:   "https://theqoo.net",
			Selectors: Selectors{
				Row:       "table.theqoo_board_table tbody.hide_notice tr",
				RowFilter: ".notice, .notice_expand",
				Title:     "td.title a:not(.replyNum)",
				Link:      "td.title a:not(.replyNum)",
				Category:  "td.cate",
				Date:      "td.time",
				Views:     "td.m_no",
				Content:   "div.rd_body, article[itemprop='articleBody']",
				Images:    "div.rd_body img",
			},
			IDExtractor: lastSegment,
			MinViews:    7000,
			MaxPages:    3,
		},
		{
			Name:      "clien_park",
			Domain:    model.DomainHot,
			Community: "4",
			PageURLFunc: func(page int) string {
				if page == 1 {
					return "https://www.clien.net/service/board/park"
				}
				return fmt.Sprintf("https://www.clien.net/service/board/park?&od=T31&category=0&po=%d", page-1)
			},
			BaseURL: "https://www.clien.net",
			Selectors: Selectors{
				Row:       "div.list_content div.list_item",
				RowFilter: ".blocked, .notice",
				Title:     "span.subject_fixed",
				Link:      "a.list_subject",
				Writer:    "span.nickname",
				Views:     "div.list_hit span.hit",
				Recommend: "div.list_symph span",
				Content:   "div.post_article",
				Images:    "div.post_article img",
			},
			CustomHandlers: CustomHandlers{ElementHandlers: map[string]CustomElementHandlerFunc{
				"date": func(s *goquery.Selection) string {
					// span.timestamp holds "2025-03-01 09:12:33"
					if ts := strings.TrimSpace(s.Find("div.list_time span.timestamp").Text()); ts != "" {
						return ts
					}
					return s.Find("div.list_time span.time").Text()
				},
			}},
			IDExtractor: lastSegment,
			MinViews:    2500,
			MaxPages:    10,
		},
		{
			Name:      "ppomppu_freeboard",
			Domain:    model.DomainHot,
			Community: "5",
			ListURL:   "https://www.ppomppu.co.kr/zboard/zboard.php?id=freeboard&page=%d",
			BaseURL:   "https://www.ppomppu.co.kr/zboard/",
			Selectors: ppomppuSelectors,
			CustomHandlers: CustomHandlers{ElementHandlers: map[string]CustomElementHandlerFunc{
				"recommend": firstNumber("td.baseList-rec"),
				"date":      attrOrText("time.baseList-time", "title"),
			}},
			IDExtractor: queryParam("no"),
			MinViews:    1500,
			MaxPages:    10,
		},
		{
			Name:        "bobaedream_best",
			Domain:      model.DomainHot,
			Community:   "7",
			ListURL:     "https://www.bobaedream.co.kr/list?code=best&page=%d",
			BaseURL:     "https://www.bobaedream.co.kr",
			Selectors:   bobaedreamSelectors,
			IDExtractor: queryParam("No"),
			MinViews:    7000,
			MaxPages:    3,
		},
		{
			Name:      "mlbpark_bullpen",
			Domain:    model.DomainHot,
			Community: "9",
			PageURLFunc: func(page int) string {
				return fmt.Sprintf("https://mlbpark.donga.com/mp/b.php?m=list&b=bullpen&query=&select=&subquery=&subselect=&user=&p=%d", (page-1)*30+1)
			},
			BaseURL: "https://mlbpark.donga.com",
			Selectors: Selectors{
				Row:        "table.tbl_type01 tbody tr",
				RowFilter:  ".notice",
				Title:      "div.tit a.txt",
				Link:       "div.tit a.txt",
				Category:   "span.category",
				Writer:     "span.nick",
				Date:       "span.date",
				Views:      "span.viewV",
				Content:    "div.view_context div.ar_txt",
				Images:     "div.view_context img",
				DetailDate: "div.text3 span.val",
			},
			IDExtractor: queryParam("id"),
			MinViews:    500,
			MaxPages:    10,
		},
		{
			Name:      "inven_openissue",
			Domain:    model.DomainHot,
			Community: "10",
			ListURL:   "https://www.inven.co.kr/board/webzine/2097?p=%d",
			BaseURL:   "https://www.inven.co.kr",
			Selectors: Selectors{
				Row:        "table.board_list tbody tr",
				RowFilter:  ".notice, .notice_pop",
				Title:      "a.subject-link",
				Link:       "a.subject-link",
				Category:   "span.category",
				Writer:     "td.user",
				Views:      "td.view",
				Recommend:  "td.reco",
				Content:    "div#powerbbsContent, div.articleContent",
				Images:     "div#powerbbsContent img",
				DetailDate: "div.articleDate",
			},
			ElementTransformers: ElementTransformers{RemoveElements: []ElementRemoval{
				{Selector: "span.category", ApplyToPath: "title"},
				{Selector: "span.con-comment", ApplyToPath: "title"},
			}},
			IDExtractor:      lastSegment,
			MinViews:         2000,
			MaxPages:         5,
			VerifyDetailDate: true,
		},
		{
			Name:              "fmkorea_humor",
			Domain:            model.DomainHot,
			Community:         "11",
			FirstPageURL:      "https://www.fmkorea.com/humor",
			ListURL:           "https://www.fmkorea.com/index.php?mid=humor&page=%d",
			BaseURL:           "https://www.fmkorea.com",
			Selectors:         fmkoreaSelectors,
			IDExtractor:       lastSegment,
			MinViews:          200,
			MaxPages:          30,
			PageMissThreshold: 5,
			VerifyDetailDate:  true,
		},

		// Politics (current_site)
		{
			Name:        "dcinside_peoplepower",
			Domain:      model.DomainPolitics,
			Community:   "1p",
			ListURL:     "https://gall.dcinside.com/mgallery/board/lists/?id=alliescon&page=%d",
			BaseURL:     "https://gall.dcinside.com",
			Selectors:   dcinsideSelectors,
			IDExtractor: queryParam("no"),
			MinViews:    150,
			MaxPages:    10,
		},
		{
			Name:      "ppomppu_politics",
			Domain:    model.DomainPolitics,
			Community: "5p",
			ListURL:   "https://www.ppomppu.co.kr/zboard/zboard.php?id=issue&page=%d",
			BaseURL:   "https://www.ppomppu.co.kr/zboard/",
			Selectors: ppomppuSelectors,
			CustomHandlers: CustomHandlers{ElementHandlers: map[string]CustomElementHandlerFunc{
				"recommend": firstNumber("td.baseList-rec"),
				"date":      attrOrText("td.baseList-space[title]", "title"),
			}},
			IDExtractor: queryParam("no"),
			MinViews:    150,
			MaxPages:    10,
		},
		{
			Name:      "ruliweb_politics",
			Domain:    model.DomainPolitics,
			Community: "6p",
			ListURL:   "https://bbs.ruliweb.com/community/board/300148?page=%d",
			BaseURL:   "https://bbs.ruliweb.com",
			Selectors: Selectors{
				Row:        "table.board_list_table tr.table_body",
				RowFilter:  ".notice, .best",
				Title:      "td.subject a.subject_link",
				Link:       "td.subject a.subject_link",
				Category:   "td.divsn",
				Writer:     "td.name",
				Views:      "td.hit",
				Recommend:  "td.recomd",
				Content:    "div.view_content",
				Images:     "div.view_content img",
				DetailDate: "span.regdate",
			},
			ElementTransformers: ElementTransformers{RemoveElements: []ElementRemoval{
				{Selector: "span.num_reply", ApplyToPath: "title"},
			}},
			IDExtractor:      lastSegment,
			MinViews:         1000,
			MaxPages:         10,
			VerifyDetailDate: true,
		},
		{
			Name:        "bobaedream_politics",
			Domain:      model.DomainPolitics,
			Community:   "7p",
			ListURL:     "https://www.bobaedream.co.kr/list?code=politic&page=%d",
			BaseURL:     "https://www.bobaedream.co.kr",
			Selectors:   bobaedreamSelectors,
			IDExtractor: queryParam("No"),
			MinViews:    50,
			MaxPages:    50,
		},
		{
			Name:         "fmkorea_politics",
			Domain:       model.DomainPolitics,
			Community:    "11p",
			FirstPageURL: "https://www.fmkorea.com/politics",
			ListURL:      "https://www.fmkorea.com/index.php?mid=politics&page=%d",
			BaseURL:      "https://www.fmkorea.com",
			Selectors:    fmkoreaSelectors,
			IDExtractor:  lastSegment,
			MinViews:     100,
			MaxPages:     10,
		},
	}
}
