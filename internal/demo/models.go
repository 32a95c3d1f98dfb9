package demo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/stripe/speedtracer/trace"
)

var ErrPageNotFound = errors.New("page not found")

// Page is one page of the demo site.
type Page struct {
	Slug  string
	Title string
	Body  string
}

// Catalog keeps pages in memory and pretends every lookup is a round trip to
// a database.
type Catalog struct {
	mtx     sync.RWMutex
	pages   map[string]Page
	latency time.Duration
}

func NewCatalog(latency time.Duration, pages ...Page) *Catalog {
	c := &Catalog{
		pages:   make(map[string]Page, len(pages)),
		latency: latency,
	}
	for _, p := range pages {
		c.pages[p.Slug] = p
	}
	return c
}

// DefaultPages seed the catalog served by the speedtracer binary.
var DefaultPages = []Page{
	{Slug: "index", Title: "Home", Body: "Every request to this site is traced."},
	{Slug: "about", Title: "About", Body: "Follow the X-TraceUrl header to see where the time went."},
	{Slug: "tracing", Title: "Tracing", Body: "Spans are recorded for instrumented functions in the application."},
	{Slug: "stores", Title: "Stores", Body: "Traces are kept in memory, in badger or in S3."},
}

func (c *Catalog) roundTrip(ctx context.Context) error {
	defer trace.Func(ctx).Exit()

	if c.latency <= 0 {
		return nil
	}
	timer := time.NewTimer(c.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fills p with the page stored under slug.
func (p *Page) Load(ctx context.Context, c *Catalog, slug string) error {
	defer trace.Func(ctx).Exit()

	if err := c.roundTrip(ctx); err != nil {
		return err
	}
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	page, ok := c.pages[slug]
	if !ok {
		return errors.Wrapf(ErrPageNotFound, "loading %q", slug)
	}
	*p = page
	return nil
}

// Search returns the pages whose title or body contains term, ordered by
// slug. The catalog is scanned in shards on separate goroutines.
func (c *Catalog) Search(ctx context.Context, term string, shards int) []Page {
	defer trace.Func(ctx).Exit()

	c.mtx.RLock()
	all := make([]Page, 0, len(c.pages))
	for _, p := range c.pages {
		all = append(all, p)
	}
	c.mtx.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })

	if shards < 1 {
		shards = 1
	}
	results := make([][]Page, shards)
	branches := make([]*trace.BranchHandle, shards)
	wg := sync.WaitGroup{}
	for i := 0; i < shards; i++ {
		var branchCtx context.Context
		branchCtx, branches[i] = trace.Branch(ctx)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.scanShard(branchCtx, all, i, shards, term)
		}(i)
	}
	wg.Wait()
	for _, branch := range branches {
		branch.Merge()
	}

	matches := []Page{}
	for _, shard := range results {
		matches = append(matches, shard...)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Slug < matches[j].Slug })
	return matches
}

func (c *Catalog) scanShard(ctx context.Context, pages []Page, shard, shards int, term string) []Page {
	defer trace.Func(ctx).Exit()

	if err := c.roundTrip(ctx); err != nil {
		return nil
	}
	term = strings.ToLower(term)
	var matches []Page
	for i := shard; i < len(pages); i += shards {
		p := pages[i]
		if strings.Contains(strings.ToLower(p.Title), term) || strings.Contains(strings.ToLower(p.Body), term) {
			matches = append(matches, p)
		}
	}
	return matches
}
