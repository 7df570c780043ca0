package helpers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sjsage522/hotissueworker/pkg/errors"
)

func TestFetchWithRandomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check that headers are set
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "ko-KR")
		assert.Equal(t, "https://www.fmkorea.com/humor", r.Header.Get("Referer"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>오늘의 유머</body></html>"))
	}))
	defer server.Close()

	reader, err := FetchWithRandomHeaders(context.Background(), server.URL, "https://www.fmkorea.com/humor")
	require.NoError(t, err)

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(body), "오늘의 유머")
}

func TestFetchWithRandomHeadersEUCKR(t *testing.T) {
	// "자유게시판" encoded as EUC-KR
	eucKR := []byte{0xC0, 0xDA, 0xC0, 0xAF, 0xB0, 0xD4, 0xBD, 0xC3, 0xC6, 0xC7}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		w.WriteHeader(http.StatusOK)
		w.Write(append(append([]byte("<html><body>"), eucKR...), []byte("</body></html>")...))
	}))
	defer server.Close()

	reader, err := FetchWithRandomHeaders(context.Background(), server.URL, "")
	require.NoError(t, err)

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(body), "자유게시판")
}

func TestFetchWithRandomHeadersError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := FetchWithRandomHeaders(context.Background(), server.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))

	// Test with rate limiting
	serverRateLimited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer serverRateLimited.Close()

	_, err = FetchWithRandomHeaders(context.Background(), serverRateLimited.URL, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
	assert.Contains(t, err.Error(), "rate limited for 1m0s")
	assert.Equal(t, time.Minute, apperrors.RetryAfter(err))
}

func TestFetchWithRandomHeadersCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchWithRandomHeaders(ctx, server.URL, "")
	assert.Error(t, err)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, RetryAfter("30"))
	assert.Zero(t, RetryAfter(""))
	assert.Zero(t, RetryAfter("-5"))
	assert.Zero(t, RetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://www.inven.co.kr/board/webzine/2097/12345",
		ResolveURL("https://www.inven.co.kr/board/webzine/2097?p=2", "/board/webzine/2097/12345"))
	assert.Equal(t, "https://m.ppomppu.co.kr/new/bbs_view.php?id=freeboard&no=1",
		ResolveURL("https://m.ppomppu.co.kr/new/bbs_list.php?id=freeboard", "bbs_view.php?id=freeboard&no=1"))
	assert.Equal(t, "https://theqoo.net/hot/1", ResolveURL("https://www.clien.net/", "https://theqoo.net/hot/1"))
}
