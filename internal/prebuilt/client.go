package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	goversion "github.com/hashicorp/go-version"
	"golang.org/x/time/rate"

	"github.com/samcharles93/fripack/internal/logger"
	"github.com/samcharles93/fripack/internal/version"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultRepo    = "FriRebuild/fripack-inject"

	// DefaultMaxDownload bounds a single library download.
	DefaultMaxDownload = 512 << 20
)

var ErrNoMatch = errors.New("no matching prebuilt asset")

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
}

type release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Client talks to the GitHub releases API of the injector repository and
// fills Cache with what it downloads.
type Client struct {
	BaseURL string
	Repo    string
	// Token is sent as a bearer token when set.
	Token       string
	HTTP        *http.Client
	Cache       *Cache
	Log         logger.Logger
	MaxDownload int64
	// ProgressEvery is the minimum interval between download progress logs.
	ProgressEvery time.Duration
}

// NewClient returns a Client for the default repository.
func NewClient(cache *Cache, log logger.Logger) *Client {
	return &Client{
		BaseURL:       DefaultBaseURL,
		Repo:          DefaultRepo,
		HTTP:          &http.Client{Timeout: 10 * time.Minute},
		Cache:         cache,
		Log:           log,
		MaxDownload:   DefaultMaxDownload,
		ProgressEvery: 2 * time.Second,
	}
}

// Releases lists the frida versions with a published injector release, newest
// first. Only tags of the form v<version> are reported, without the prefix.
func (c *Client) Releases(ctx context.Context) ([]string, error) {
	var releases []release
	if err := c.getJSON(ctx, c.apiURL("releases"), &releases); err != nil {
		return nil, fmt.Errorf("fetch releases: %w", err)
	}
	versions := make([]string, 0, len(releases))
	for _, r := range releases {
		if v, ok := strings.CutPrefix(r.TagName, "v"); ok && v != "" {
			versions = append(versions, v)
		}
	}
	sortVersionsDesc(versions)
	return versions, nil
}

// ReleaseAssets lists the assets of the release tagged ver.
func (c *Client) ReleaseAssets(ctx context.Context, ver string) ([]Asset, error) {
	var r release
	if err := c.getJSON(ctx, c.apiURL("releases", "tags", ver), &r); err != nil {
		return nil, fmt.Errorf("fetch release %s: %w", ver, err)
	}
	assets := slices.DeleteFunc(r.Assets, func(a Asset) bool {
		return a.Name == "" || a.DownloadURL == ""
	})
	if len(assets) == 0 {
		return nil, fmt.Errorf("release %s has no assets", ver)
	}
	return assets, nil
}

// Fetch returns the injector library for platform and frida version,
// downloading and caching it on a miss.
func (c *Client) Fetch(ctx context.Context, platform, ver string) ([]byte, error) {
	log := c.logger().With("platform", platform, "frida_version", ver)

	if c.Cache != nil {
		data, err := c.Cache.Load(platform, ver)
		switch {
		case err == nil:
			path, _ := c.Cache.Path(platform, ver)
			log.Info("loaded prebuilt from cache", "path", path)
			return data, nil
		case errors.Is(err, ErrChecksum):
			log.Warn("ignoring corrupt cache entry", "err", err)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	assets, err := c.ReleaseAssets(ctx, ver)
	if err != nil {
		return nil, err
	}
	asset, kind, err := MatchAsset(assets, platform, ver)
	if err != nil {
		return nil, err
	}
	switch kind {
	case MatchPlatform:
		log.Warn("platform matched but version may not", "asset", asset.Name)
	case MatchFallback:
		log.Warn("using fallback asset with no platform match", "asset", asset.Name)
	}

	log.Info("downloading prebuilt", "asset", asset.Name)
	start := time.Now()
	data, err := c.download(ctx, asset, log)
	if err != nil {
		return nil, err
	}
	log.Info("download complete", "bytes", len(data), "took", time.Since(start))

	if c.Cache != nil {
		path, err := c.Cache.Save(platform, ver, data)
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", asset.Name, err)
		}
		log.Debug("cached prebuilt", "path", path)
	}
	return data, nil
}

func (c *Client) download(ctx context.Context, asset Asset, log logger.Logger) ([]byte, error) {
	resp, err := c.do(ctx, asset.DownloadURL, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := c.MaxDownload
	if limit <= 0 {
		limit = DefaultMaxDownload
	}
	pr := &progressReader{
		r:     io.LimitReader(resp.Body, limit+1),
		total: resp.ContentLength,
		every: rate.Sometimes{Interval: c.ProgressEvery},
		log:   log,
	}
	data, err := io.ReadAll(pr)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", asset.DownloadURL, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("download %s: exceeds %d bytes", asset.DownloadURL, limit)
	}
	return data, nil
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	every rate.Sometimes
	log   logger.Logger
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if n > 0 {
		p.every.Do(func() {
			if p.total > 0 {
				p.log.Info("downloading", "bytes", p.read, "total", p.total,
					"percent", fmt.Sprintf("%.0f%%", float64(p.read)*100/float64(p.total)))
			} else {
				p.log.Info("downloading", "bytes", p.read)
			}
		})
	}
	return n, err
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	resp, err := c.do(ctx, u, "application/vnd.github+json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).DecodeContext(ctx, v); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, u, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", accept)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("HTTP %s: %s", resp.Status, u)
	}
	return resp, nil
}

func (c *Client) apiURL(parts ...string) string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	repo := c.Repo
	if repo == "" {
		repo = DefaultRepo
	}
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return base + "/repos/" + repo + "/" + strings.Join(escaped, "/")
}

func (c *Client) logger() logger.Logger {
	if c.Log == nil {
		return logger.Discard()
	}
	return c.Log
}

// sortVersionsDesc orders versions newest first. Tags that do not parse as
// versions sort after those that do, in reverse lexical order.
func sortVersionsDesc(vs []string) {
	slices.SortStableFunc(vs, func(a, b string) int {
		va, errA := goversion.NewVersion(a)
		vb, errB := goversion.NewVersion(b)
		switch {
		case errA == nil && errB == nil:
			return vb.Compare(va)
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			return strings.Compare(b, a)
		}
	})
}
