package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/services/cache"
)

const listPage = `
<html><body>
<table class="bd_lst"><tbody>
	<tr class="notice"><td class="title"><a href="/1">공지사항</a></td><td class="time">09:00</td><td class="m_no">99999</td></tr>
	<tr>
		<td class="cate"><a>유머</a></td>
		<td class="title"><a href="/7712"> 오늘 본   고양이 <span class="reply">[3]</span></a></td>
		<td class="author">냥집사</td>
		<td class="time">09:12</td>
		<td class="m_no">1,234</td>
		<td class="m_no_voted">12 - 3</td>
	</tr>
	<tr>
		<td class="title"><a href="/7700">어제 글</a></td>
		<td class="author">누군가</td>
		<td class="time">25.02.28</td>
		<td class="m_no">50</td>
	</tr>
	<tr><td class="title"><a href="javascript:void(0)">광고</a></td><td class="time">10:00</td></tr>
</tbody></table>
</body></html>`

const detailPage = `
<html><body>
<div class="top_area"><span class="date">2025.03.01 09:12</span></div>
<div class="xe_content">
	<p>첫 줄</p>
	<p>둘째   줄</p>
	<img src="/files/a.jpg"><img data-original="//image.example.com/b.jpg" src="/loading.gif">
	<img src="/files/a.jpg"><img src="data:image/png;base64,AAAA">
</div>
</body></html>`

func testSite(baseURL string) SiteConfig {
	return SiteConfig{
		Name:      "fmkorea_humor",
		Domain:    model.DomainHot,
		Community: "11",
		ListURL:   baseURL + "/list?page=%d",
		BaseURL:   baseURL,
		Selectors: fmkoreaSelectors,
		CustomHandlers: CustomHandlers{ElementHandlers: map[string]CustomElementHandlerFunc{
			"recommend": firstNumber("td.m_no_voted"),
		}},
		ElementTransformers: ElementTransformers{RemoveElements: []ElementRemoval{
			{Selector: "span.reply", ApplyToPath: "title"},
		}},
		IDExtractor:      lastSegment,
		MinViews:         200,
		VerifyDetailDate: true,
	}
}

func TestConfigurableCrawlerFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, listPage)
	}))
	defer server.Close()

	c := NewConfigurableCrawler(testSite(server.URL), nil, kst)
	c.Now = func() time.Time { return engineNow }

	listings, err := c.FetchPage(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	first := listings[0]
	assert.Equal(t, "7712", first.Post.PostID)
	assert.Equal(t, "11", first.Post.Community)
	assert.Equal(t, "유머", first.Post.Category)
	assert.Equal(t, "오늘 본 고양이", first.Post.Title)
	assert.Equal(t, server.URL+"/7712", first.Post.Link)
	assert.Equal(t, "냥집사", first.Post.Writer)
	assert.Equal(t, "2025-03-01 09:12:00", first.Post.Date)
	assert.Equal(t, "1,234", first.Post.Views)
	assert.Equal(t, "12", first.Post.Recommend)
	assert.Equal(t, 1234, first.Views)
	assert.True(t, SameDay(first.PostedAt, engineNow, kst))

	second := listings[1]
	assert.Equal(t, "7700", second.Post.PostID)
	assert.Equal(t, "2025-02-28 00:00:00", second.Post.Date)
	assert.Equal(t, 50, second.Views)
}

func TestConfigurableCrawlerFetchDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, detailPage)
	}))
	defer server.Close()

	c := NewConfigurableCrawler(testSite(server.URL), nil, kst)
	c.Now = func() time.Time { return engineNow }

	detail, err := c.FetchDetail(context.Background(), Listing{Post: model.RawPost{Link: server.URL + "/7712"}})
	require.NoError(t, err)

	assert.Equal(t, "첫 줄 둘째 줄", detail.Content)
	assert.Equal(t, []string{server.URL + "/files/a.jpg", "http://image.example.com/b.jpg"}, detail.Images)
	assert.Equal(t, "2025-03-01 09:12:00", detail.PostedAt.Format(model.RegDateLayout))
}

func TestConfigurableCrawlerWithEngine(t *testing.T) {
	var listRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		listRequests.Add(1)
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, listPage)
			return
		}
		fmt.Fprint(w, "<html><body><table class='bd_lst'><tbody></tbody></table></body></html>")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewConfigurableCrawler(testSite(server.URL), nil, kst)
	c.Now = func() time.Time { return engineNow }

	cfg := c.Tune(DefaultEngineConfig())
	assert.Equal(t, 200, cfg.MinViews)
	assert.True(t, cfg.VerifyDetailDate)

	e, _ := testEngine(cfg)
	res := e.Run(context.Background(), c)

	assert.Equal(t, StopPageMisses, res.Reason)
	assert.Equal(t, int32(4), listRequests.Load())
	require.Len(t, res.Posts, 1)
	assert.Equal(t, "7712", res.Posts[0].PostID)
	assert.Equal(t, "첫 줄 둘째 줄", res.Posts[0].Content)
	assert.Equal(t, "2025-03-01 09:12:00", res.Posts[0].Date)
	assert.Len(t, res.Posts[0].Images, 2)
}

func TestConfigurableCrawlerRateLimited(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	guard := cache.NewRateLimitGuard(cache.NewMemoryCache(), time.Minute)
	c := NewConfigurableCrawler(testSite(server.URL), guard, kst)

	_, err := c.FetchPage(context.Background(), 1)
	assert.Error(t, err)
	_, err = c.FetchPage(context.Background(), 2)
	assert.Error(t, err)

	assert.Equal(t, int32(1), requests.Load())
	assert.True(t, guard.Blocked("fmkorea_humor"))
}

func TestPageURL(t *testing.T) {
	sites := make(map[string]SiteConfig)
	for _, s := range SiteConfigs() {
		sites[s.Name] = s
	}

	fm := NewConfigurableCrawler(sites["fmkorea_humor"], nil, kst)
	assert.Equal(t, "https://www.fmkorea.com/humor", fm.pageURL(1))
	assert.Equal(t, "https://www.fmkorea.com/index.php?mid=humor&page=2", fm.pageURL(2))

	mlb := NewConfigurableCrawler(sites["mlbpark_bullpen"], nil, kst)
	assert.True(t, strings.HasSuffix(mlb.pageURL(3), "&p=61"))

	clien := NewConfigurableCrawler(sites["clien_park"], nil, kst)
	assert.Equal(t, "https://www.clien.net/service/board/park?&od=T31&category=0&po=1", clien.pageURL(2))
}

func TestSiteConfigs(t *testing.T) {
	sites := SiteConfigs()
	require.Len(t, sites, 13)

	names := make(map[string]bool)
	communities := make(map[string]bool)
	for _, s := range sites {
		assert.False(t, names[s.Name], "duplicate site %s", s.Name)
		assert.False(t, communities[s.Community], "duplicate community %s", s.Community)
		names[s.Name] = true
		communities[s.Community] = true

		if s.Domain == model.DomainPolitics {
			assert.True(t, strings.HasSuffix(s.Community, "p"), s.Name)
		}
		assert.NotEmpty(t, s.Selectors.Row, s.Name)
		assert.NotNil(t, s.IDExtractor, s.Name)
	}

	crawlers, err := CreateCrawlers([]string{"inven_openissue", "ruliweb_politics"}, nil, kst)
	require.NoError(t, err)
	require.Len(t, crawlers, 2)
	assert.Equal(t, model.DomainPolitics, crawlers[1].GetDomain())
	assert.True(t, crawlers[0].Tune(DefaultEngineConfig()).VerifyDetailDate)

	_, err = CreateCrawlers([]string{"instiz"}, nil, kst)
	assert.Error(t, err)
}

func TestIDExtractors(t *testing.T) {
	id, err := lastSegment("https://www.inven.co.kr/board/webzine/2097/12345?p=1")
	require.NoError(t, err)
	assert.Equal(t, "12345", id)

	id, err = queryParam("no")("https://gall.dcinside.com/board/view/?id=dcbest&no=998877&page=1")
	require.NoError(t, err)
	assert.Equal(t, "998877", id)

	_, err = queryParam("No")("https://www.bobaedream.co.kr/view?code=best")
	assert.Error(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<table><tr><td class="baseList-rec">3 - 0</td></tr></table>`))
	require.NoError(t, err)
	assert.Equal(t, "3", firstNumber("td.baseList-rec")(doc.Find("tr")))
}
