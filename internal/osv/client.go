// Package osv queries the OSV.dev vulnerability database in batches and
// normalizes the results.
package osv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/therickybobbeh/depscan/internal/model"
)

const (
	// DefaultBaseURL is the production OSV API endpoint, overridable via
	// OSV_API_URL for tests.
	DefaultBaseURL = "https://api.osv.dev/v1"

	// maxBatchSize is the querybatch limit imposed by the OSV API.
	maxBatchSize = 100

	defaultMaxParallel = 8
	maxRetries         = 5
	backoffBase        = 500 * time.Millisecond
	backoffCap         = 30 * time.Second
	connectTimeout     = 30 * time.Second
	responseTimeout    = 60 * time.Second
)

// Store is the cache surface the client needs. A fresh hit short-circuits
// the network; a stale hit is used only when the upstream is unavailable.
type Store interface {
	Get(eco model.Ecosystem, name, version string) (vulns []model.Vuln, fresh bool, stale bool)
	Put(eco model.Ecosystem, name, version string, vulns []model.Vuln)
}

// Client resolves dependencies to vulnerabilities via the OSV API.
type Client struct {
	baseURL     string
	http        *http.Client
	cache       Store
	maxParallel int

	// retry configuration, overridable in tests
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewClient builds a client. cache may be nil; baseURL empty means the
// production endpoint.
func NewClient(baseURL string, cache Store) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: responseTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				MaxIdleConnsPerHost: defaultMaxParallel,
			},
		},
		cache:       cache,
		maxParallel: defaultMaxParallel,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
	}
}

// SetMaxParallel bounds concurrent batch requests.
func (c *Client) SetMaxParallel(n int) {
	if n > 0 {
		c.maxParallel = n
	}
}

// Result is the outcome of one Scan call.
type Result struct {
	Vulns         []model.Vuln
	Warnings      []string
	StaleKeys     []string
	TotalBatches  int
	FailedBatches int
}

type packageKey struct {
	eco     model.Ecosystem
	name    string
	version string
}

func (k packageKey) String() string {
	return string(k.eco) + "|" + k.name + "|" + k.version
}

// Scan resolves every dependency's (ecosystem, name, version) coordinate
// against OSV, consulting the cache first, and re-associates findings with
// each dependency path. One batch failing degrades the result; only every
// batch failing is an error. onBatchDone, when non-nil, is called after
// each batch settles with the settled and total batch counts.
func (c *Client) Scan(ctx context.Context, deps []model.Dep, onBatchDone func(done, total int)) (*Result, error) {
	res := &Result{}

	// Collect unique coordinates; paths never reach the wire.
	keyDeps := make(map[packageKey][]model.Dep)
	var keys []packageKey
	for _, d := range deps {
		if d.Version == "" || !exactVersion(d.Version) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s %s@%q: no exact version, not queried", d.Ecosystem, d.Name, d.Version))
			continue
		}
		k := packageKey{d.Ecosystem, d.Name, d.Version}
		if _, ok := keyDeps[k]; !ok {
			keys = append(keys, k)
		}
		keyDeps[k] = append(keyDeps[k], d)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	vulnsByKey := make(map[packageKey][]model.Vuln, len(keys))
	var uncached []packageKey
	for _, k := range keys {
		if c.cache != nil {
			if vulns, fresh, _ := c.cache.Get(k.eco, k.name, k.version); fresh {
				vulnsByKey[k] = vulns
				continue
			}
		}
		uncached = append(uncached, k)
	}

	if len(uncached) > 0 {
		if err := c.queryUncached(ctx, uncached, vulnsByKey, res, onBatchDone); err != nil {
			return nil, err
		}
	}

	for _, k := range keys {
		for _, v := range vulnsByKey[k] {
			for _, d := range keyDeps[k] {
				res.Vulns = append(res.Vulns, v.WithDep(d))
			}
		}
	}
	model.SortVulns(res.Vulns)
	return res, nil
}

// queryUncached batches the missing coordinates against /querybatch, then
// pulls full records for every hit.
func (c *Client) queryUncached(ctx context.Context, keys []packageKey, vulnsByKey map[packageKey][]model.Vuln, res *Result, onBatchDone func(done, total int)) error {
	batches := partition(keys, maxBatchSize)
	res.TotalBatches = len(batches)

	var (
		mu         sync.Mutex
		done       int
		idsByKey   = make(map[packageKey][]string)
		failedKeys = make(map[packageKey]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			// Cancellation is honored between batches; an in-flight request
			// runs to completion or timeout.
			if err := gctx.Err(); err != nil {
				return err
			}
			hits, err := c.queryBatch(context.WithoutCancel(gctx), batch)
			mu.Lock()
			defer mu.Unlock()
			done++
			if onBatchDone != nil {
				onBatchDone(done, res.TotalBatches)
			}
			if err != nil {
				res.FailedBatches++
				for _, k := range batch {
					failedKeys[k] = true
				}
				c.recordBatchFailure(batch, err, vulnsByKey, res)
				return nil
			}
			for k, ids := range hits {
				idsByKey[k] = ids
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if res.TotalBatches > 0 && res.FailedBatches == res.TotalBatches && len(res.StaleKeys) == 0 {
		return fmt.Errorf("%w: every OSV batch failed", model.ErrUpstream)
	}

	records, err := c.fetchRecords(ctx, idsByKey)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if failedKeys[k] {
			continue // never answered; stale fallback may have filled it
		}
		vulns := make([]model.Vuln, 0, len(idsByKey[k]))
		for _, id := range idsByKey[k] {
			rec, ok := records[id]
			if !ok {
				continue
			}
			vulns = append(vulns, Normalize(rec, k.eco, k.name, k.version))
		}
		vulnsByKey[k] = vulns
		if c.cache != nil {
			c.cache.Put(k.eco, k.name, k.version, vulns)
		}
	}
	return nil
}

// recordBatchFailure marks every member of a failed batch as incomplete and
// degrades to stale cache entries where available.
func (c *Client) recordBatchFailure(batch []packageKey, err error, vulnsByKey map[packageKey][]model.Vuln, res *Result) {
	slog.Warn("OSV batch failed", "members", len(batch), "error", err)
	for _, k := range batch {
		if c.cache != nil {
			if vulns, _, stale := c.cache.Get(k.eco, k.name, k.version); stale {
				vulnsByKey[k] = vulns
				res.StaleKeys = append(res.StaleKeys, k.String())
				continue
			}
		}
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%s %s@%s: scan incomplete (%v)", k.eco, k.name, k.version, err))
	}
}

// queryBatch submits one querybatch request and maps each hit back to its
// coordinate. The response aligns positionally with the queries.
func (c *Client) queryBatch(ctx context.Context, batch []packageKey) (map[packageKey][]string, error) {
	req := BatchRequest{Queries: make([]Query, len(batch))}
	for i, k := range batch {
		req.Queries[i] = Query{
			Package: Package{Name: k.name, Ecosystem: string(k.eco)},
			Version: k.version,
		}
	}
	var resp BatchResponse
	if err := c.postJSON(ctx, c.baseURL+"/querybatch", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(batch) {
		return nil, fmt.Errorf("%w: querybatch returned %d results for %d queries",
			model.ErrUpstream, len(resp.Results), len(batch))
	}
	hits := make(map[packageKey][]string)
	for i, r := range resp.Results {
		for _, v := range r.Vulns {
			hits[batch[i]] = append(hits[batch[i]], v.ID)
		}
	}
	return hits, nil
}

// fetchRecords pulls full vulnerability records for every distinct id.
func (c *Client) fetchRecords(ctx context.Context, idsByKey map[packageKey][]string) (map[string]*Vulnerability, error) {
	unique := make(map[string]bool)
	for _, ids := range idsByKey {
		for _, id := range ids {
			unique[id] = true
		}
	}
	records := make(map[string]*Vulnerability, len(unique))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for id := range unique {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := c.getVuln(gctx, id)
			if err != nil {
				slog.Warn("OSV record fetch failed", "id", id, "error", err)
				return nil
			}
			mu.Lock()
			records[id] = rec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// getVuln fetches one full record from /vulns/{id}.
func (c *Client) getVuln(ctx context.Context, id string) (*Vulnerability, error) {
	var rec Vulnerability
	if err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/vulns/"+id, nil)
	}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// doWithRetry executes a request with exponential backoff and jitter.
// 429 and 5xx responses are retried; any other 4xx is fatal.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			if delay > c.backoffCap {
				delay = c.backoffCap
			}
			delay += time.Duration(rand.Int63n(int64(c.backoffBase)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		req, err := build()
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "depscan/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request %s: %w", req.URL.Path, err)
			continue
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode %s: %w", req.URL.Path, err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s returned status %d", model.ErrUpstream, req.URL.Path, resp.StatusCode)
			continue
		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%w: %s returned status %d", model.ErrUpstream, req.URL.Path, resp.StatusCode)
		}
	}
	return lastErr
}

func partition(keys []packageKey, size int) [][]packageKey {
	var out [][]packageKey
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

// exactVersion reports whether the string looks like a concrete version
// rather than a range specifier.
func exactVersion(v string) bool {
	for _, r := range v {
		switch r {
		case '^', '~', '>', '<', '=', '*', '|', ' ', ',':
			return false
		}
	}
	return len(v) > 0 && v[0] >= '0' && v[0] <= '9'
}
