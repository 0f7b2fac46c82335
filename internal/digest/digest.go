// Package digest fetches configured RSS feeds on a schedule, asks the agent
// to curate the new items, and posts the result to a conversation thread.
package digest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mmcdole/gofeed"
	"github.com/robfig/cron/v3"

	"github.com/wdchenxyz/agent-rina/internal/agent"
	"github.com/wdchenxyz/agent-rina/internal/bridge"
	"github.com/wdchenxyz/agent-rina/internal/config"
	"github.com/wdchenxyz/agent-rina/internal/core"
	"github.com/wdchenxyz/agent-rina/internal/storage"
)

const (
	seenStatePrefix   = "digest_seen:"
	seenStateTTL      = 14 * 24 * time.Hour
	maxItemsPerRun    = 12
	maxArticleBytes   = 8 * 1024
	digestMaxSteps    = 20
	feedFetchTimeout  = 30 * time.Second
	articleUserAgent  = "Mozilla/5.0 (compatible; Rina/1.0)"
	defaultDedupItems = 512
)

// ThreadResolver maps a configured thread ID to a postable thread.
type ThreadResolver func(threadID string) (bridge.Thread, error)

// Digest runs the periodic feed digest.
type Digest struct {
	cfg     config.DigestConfig
	db      *storage.Database
	runner  agent.Runner
	retry   *bridge.Retry
	resolve ThreadResolver
	seen    *lru.Cache[string, struct{}]
	parser  *gofeed.Parser
}

func New(cfg config.DigestConfig, db *storage.Database, runner agent.Runner, retry *bridge.Retry, resolve ThreadResolver) (*Digest, error) {
	capacity := cfg.DedupCapacity
	if capacity <= 0 {
		capacity = defaultDedupItems
	}
	seen, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating dedup cache: %w", err)
	}
	return &Digest{
		cfg:     cfg,
		db:      db,
		runner:  runner,
		retry:   retry,
		resolve: resolve,
		seen:    seen,
		parser:  gofeed.NewParser(),
	}, nil
}

// Spawn schedules digest runs per the configured cron expression and returns
// immediately. The scheduler stops when ctx is cancelled.
func (d *Digest) Spawn(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(d.cfg.Cron, func() {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if err := d.Run(runCtx); err != nil {
			log.Printf("[digest] run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest cron %q: %w", d.cfg.Cron, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	log.Printf("[digest] scheduled %d feeds with cron %q", len(d.cfg.Feeds), d.cfg.Cron)
	return nil
}

// Run performs one digest cycle: collect unseen feed items, curate them
// through the agent, and deliver the summary.
func (d *Digest) Run(ctx context.Context) error {
	items := d.collectNewItems(ctx)
	if len(items) == 0 {
		log.Printf("[digest] no new items")
		return nil
	}

	summary, err := d.curate(ctx, items)
	if err != nil {
		return fmt.Errorf("curating digest: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		log.Printf("[digest] agent returned empty digest for %d items", len(items))
		return nil
	}

	thread, err := d.resolve(d.cfg.ThreadID)
	if err != nil {
		return fmt.Errorf("resolving digest thread %q: %w", d.cfg.ThreadID, err)
	}

	for _, chunk := range core.SplitText(summary, thread.MaxMessageLength()) {
		chunk := chunk
		if err := d.retry.Do(ctx, func() error {
			return thread.Post(ctx, bridge.Payload{Markdown: chunk})
		}); err != nil {
			return fmt.Errorf("posting digest: %w", err)
		}
	}

	// Mark delivered items only after the post succeeded.
	for _, item := range items {
		d.markSeen(item.key)
	}
	log.Printf("[digest] delivered digest of %d items to %s", len(items), d.cfg.ThreadID)
	return nil
}

type feedItem struct {
	key     string
	title   string
	link    string
	excerpt string
}

func (d *Digest) collectNewItems(ctx context.Context) []feedItem {
	var items []feedItem
	for _, url := range d.cfg.Feeds {
		feedCtx, cancel := context.WithTimeout(ctx, feedFetchTimeout)
		feed, err := d.parser.ParseURLWithContext(url, feedCtx)
		cancel()
		if err != nil {
			log.Printf("[digest] feed %s: %v", url, err)
			continue
		}
		for _, it := range feed.Items {
			if len(items) >= maxItemsPerRun {
				return items
			}
			key := it.GUID
			if key == "" {
				key = it.Link
			}
			if key == "" || d.isSeen(key) {
				continue
			}
			items = append(items, feedItem{
				key:     key,
				title:   strings.TrimSpace(it.Title),
				link:    it.Link,
				excerpt: d.excerpt(ctx, it),
			})
		}
	}
	return items
}

// excerpt prefers the feed's own description and falls back to fetching the
// linked page.
func (d *Digest) excerpt(ctx context.Context, it *gofeed.Item) string {
	desc := strings.TrimSpace(htmlToText(it.Description))
	if desc != "" {
		return truncateBytes(desc, maxArticleBytes)
	}
	if it.Link == "" {
		return ""
	}
	text, err := fetchPageText(ctx, it.Link)
	if err != nil {
		log.Printf("[digest] article %s: %v", it.Link, err)
		return ""
	}
	return truncateBytes(text, maxArticleBytes)
}

func (d *Digest) curate(ctx context.Context, items []feedItem) (string, error) {
	var b strings.Builder
	b.WriteString("Here are new articles from my feeds. Write a short digest: pick the items worth reading, one line each with the title, why it matters, and the link. Skip duplicates and filler.\n")
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s\n%s\n", i+1, item.title, item.link)
		if item.excerpt != "" {
			fmt.Fprintf(&b, "%s\n", item.excerpt)
		}
	}

	turns := []core.Turn{core.TextTurn(core.RoleUser, b.String())}
	return agent.CollectText(ctx, d.runner, turns, agent.StreamOptions{MaxSteps: digestMaxSteps})
}

func (d *Digest) isSeen(key string) bool {
	if _, ok := d.seen.Get(key); ok {
		return true
	}
	_, found, err := d.db.GetState(seenStatePrefix + key)
	if err != nil {
		log.Printf("[digest] reading seen marker: %v", err)
	}
	if found {
		// Warm the in-memory cache from the persisted marker.
		d.seen.Add(key, struct{}{})
	}
	return found
}

func (d *Digest) markSeen(key string) {
	d.seen.Add(key, struct{}{})
	if err := d.db.SetState(seenStatePrefix+key, "1", seenStateTTL); err != nil {
		log.Printf("[digest] storing seen marker: %v", err)
	}
}

func fetchPageText(ctx context.Context, url string) (string, error) {
	client := &http.Client{Timeout: feedFetchTimeout}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", articleUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/html") {
		return htmlToText(string(body)), nil
	}
	return string(body), nil
}

func htmlToText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text())
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:core.FloorCharBoundary(s, n)] + "..."
}
