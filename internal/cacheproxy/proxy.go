package cacheproxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"misl/internal/model"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout           = 3000 * time.Millisecond
	DefaultRevalidateTimeout = 30 * time.Second

	maxResponseBytes = 8 << 20
)

type Config struct {
	// Upstream is the base URL of the list API.
	Upstream string
	// Timeout is how long a cached GET waits for the live answer.
	Timeout time.Duration
	// RevalidateTimeout bounds a background refresh after the client got
	// the cached copy.
	RevalidateTimeout time.Duration

	Client *http.Client
	Logger *slog.Logger
}

// Proxy serves GETs stale-while-revalidate and passes writes through.
type Proxy struct {
	upstream          *url.URL
	cache             Cache
	client            *http.Client
	timeout           time.Duration
	revalidateTimeout time.Duration
	log               *slog.Logger

	group singleflight.Group
}

func New(cfg Config, cache Cache) (*Proxy, error) {
	if cache == nil {
		return nil, errors.New("cacheproxy: missing cache")
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.Upstream), "/"))
	if err != nil {
		return nil, fmt.Errorf("cacheproxy: upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cacheproxy: upstream must be an absolute URL: %q", cfg.Upstream)
	}
	p := &Proxy{
		upstream:          u,
		cache:             cache,
		client:            cfg.Client,
		timeout:           cfg.Timeout,
		revalidateTimeout: cfg.RevalidateTimeout,
		log:               cfg.Logger,
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.revalidateTimeout <= 0 {
		p.revalidateTimeout = DefaultRevalidateTimeout
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		p.forward(w, r)
		return
	}

	key := cacheKey(r)
	cached, hit, err := p.cache.Get(r.Context(), key)
	if err != nil {
		p.log.Warn("cache read failed", "path", r.URL.Path, "err", err)
		hit = false
	}
	fresh := p.revalidate(key, r)

	if !hit {
		select {
		case res := <-fresh:
			if res.Err != nil {
				p.log.Warn("upstream unavailable", "path", r.URL.Path, "err", res.Err)
				writeUpstreamError(w, res.Err)
				return
			}
			writeResponse(w, res.Val.(Response), false)
		case <-r.Context().Done():
		}
		return
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case res := <-fresh:
		if res.Err != nil {
			p.log.Info("serving cached response", "path", r.URL.Path, "reason", "upstream error", "err", res.Err)
			writeResponse(w, cached, true)
			return
		}
		writeResponse(w, res.Val.(Response), false)
	case <-timer.C:
		p.log.Info("serving cached response", "path", r.URL.Path, "reason", "timeout", "stored_at", cached.StoredAt)
		writeResponse(w, cached, true)
	case <-r.Context().Done():
	}
}

// revalidate starts (or joins) the live fetch for key. The fetch is detached
// from the client request so it can refresh the cache after a timeout.
func (p *Proxy) revalidate(key string, r *http.Request) <-chan singleflight.Result {
	target := p.target(r.URL)
	header := outboundHeader(r.Header)
	return p.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.revalidateTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header = header
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		out := Response{
			Status:   resp.StatusCode,
			Header:   storedHeader(resp.Header),
			Body:     body,
			StoredAt: time.Now().UTC(),
		}
		if out.Status >= 200 && out.Status < 300 {
			if err := p.cache.Put(ctx, key, out); err != nil {
				p.log.Warn("cache write failed", "err", err)
			}
		}
		return out, nil
	})
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, p.target(r.URL), r.Body)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	req.Header = outboundHeader(r.Header)
	req.ContentLength = r.ContentLength

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("upstream unavailable", "method", r.Method, "path", r.URL.Path, "err", err)
		writeUpstreamError(w, err)
		return
	}
	defer resp.Body.Close()
	copyHeader(w.Header(), storedHeader(resp.Header))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (p *Proxy) target(u *url.URL) string {
	t := *p.upstream
	t.Path = p.upstream.Path + u.Path
	t.RawPath = ""
	t.RawQuery = u.RawQuery
	return t.String()
}

// cacheKey separates lists by access code without storing the code itself.
func cacheKey(r *http.Request) string {
	sum := sha256.Sum256([]byte(strings.ToLower(r.Header.Get(model.HeaderAccessCode))))
	return r.Method + " " + r.URL.RequestURI() + " " + hex.EncodeToString(sum[:16])
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

func outboundHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, k := range hopHeaders {
		out.Del(k)
	}
	out.Del(model.HeaderFromCache)
	return out
}

func storedHeader(h http.Header) http.Header {
	out := outboundHeader(h)
	out.Del("Date")
	return out
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func writeResponse(w http.ResponseWriter, resp Response, fromCache bool) {
	copyHeader(w.Header(), resp.Header)
	if fromCache {
		w.Header().Set(model.HeaderFromCache, "true")
	} else {
		w.Header().Del(model.HeaderFromCache)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(model.ErrorBody{
		Type:    "error",
		Code:    "e09",
		Reason:  "UpstreamUnavailable",
		Message: "Upstream Unavailable",
		Details: err.Error(),
	})
}
