//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedguard/internal/dom"
	"feedguard/internal/engine"
	"feedguard/internal/fetcher"
	"feedguard/internal/loop"
	"feedguard/internal/models"
	"feedguard/pkg/logger"
)

const feed = `<html><body><div role="main"><div role="feed">
<div role="article" id="ad"><h4>Được tài trợ</h4><p>Khuyến mãi lớn</p></div>
<div role="article" id="reel"><a href="/reel/123">Reel</a></div>
<div role="article" id="post"><p>Weekend hike photos</p></div>
</div></div></body></html>`

func TestFetchAndScan(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(feed))
	}))
	defer ts.Close()

	client := fetcher.NewHTTPClient(5*time.Second, 2*time.Second, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	page, err := client.Fetch(ctx, ts.URL)
	require.NoError(t, err)

	rep, err := engine.Scan(ctx, page.Doc, page.Location, engine.ScanOptions{
		Options: engine.Options{Settings: models.DefaultSettings(), Logger: logger.Discard()},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Stats.Processed)
	assert.Equal(t, 2, rep.Stats.Hidden)
	assert.False(t, dom.IsHidden(dom.SelectFirst(page.Doc, "#post")))
}

// TestLiveEngine drives a real-time loop: items appended after binding are
// hidden once the mutation batch is delivered.
func TestLiveEngine(t *testing.T) {
	doc, err := dom.ParseString(feed)
	require.NoError(t, err)

	l := loop.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	e, err := engine.New(doc, "https://www.facebook.com/", l, engine.Options{
		Settings: models.DefaultSettings(),
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var hidden []models.HiddenItem
	e.OnHidden(func(it models.HiddenItem) {
		mu.Lock()
		defer mu.Unlock()
		hidden = append(hidden, it)
	})
	e.Start()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(hidden)
	}
	require.Eventually(t, func() bool { return count() == 2 }, 2*time.Second, 10*time.Millisecond)

	// Wait out the throttle window before the next mutation.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, e.Mutate(ctx, func(tr *dom.Tree) {
		f := dom.SelectFirst(tr.Document(), `div[role="feed"]`)
		_, err := tr.AppendHTML(f, `<div role="article"><span>Sponsored</span><p>Flash sale</p></div>`)
		require.NoError(t, err)
	}))
	require.Eventually(t, func() bool { return count() == 3 }, 2*time.Second, 10*time.Millisecond)

	var stats models.Stats
	require.NoError(t, e.Do(ctx, func() { stats = e.Stats() }))
	assert.Equal(t, 4, stats.Processed)
	e.Stop()
}
