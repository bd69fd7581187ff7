package orchestrator

import (
	"context"
	"errors"
	"fetchguard/internal/cache"
	"fetchguard/internal/paginate"
	"fetchguard/internal/ports"
	"fetchguard/internal/ratecontrol"
	"fetchguard/internal/session"
	"fetchguard/internal/types"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type (
	SuccessFunc func(body []byte)
	ErrorFunc   func(err error)
	LoadingFunc func(loading bool)
	// Dispatcher hands a callback to the caller's execution context, e.g. a UI event loop.
	Dispatcher func(fn func())
	// TokenRefresher obtains a fresh token before the current one expires.
	TokenRefresher func(ctx context.Context) (token string, ttl time.Duration, err error)
)

// Options wires the collaborators. Transport is required; everything else is optional.
// Session: when set, its token is attached to every request, and a live session is required unless
// AllowAnonymous is true.
// RequestsPerMinute: with a RateLimiter, caps transport calls per endpoint partition. 0 means no limit.
// TotalExpr: JMESPath expression selecting the total item count from a page body.
type Options struct {
	Transport         ports.Transport
	Cache             *cache.TTL[[]byte]
	Codec             *cache.Codec
	Session           *session.Guard
	AllowAnonymous    bool
	RateLimiter       ports.RateLimiter
	RequestsPerMinute int
	Dispatcher        Dispatcher
	OnAuthError       func(status int)
	RefreshToken      TokenRefresher
	RefreshThreshold  time.Duration
	TotalExpr         string
	DebounceWait      time.Duration
}

// Orchestrator decides whether a request hits the network: cache first, then session and rate checks,
// then the transport, then the cache write.
type Orchestrator struct {
	opts     Options
	cache    *cache.TTL[[]byte]
	flights  singleflight.Group
	debounce *ratecontrol.KeyedDebouncer

	mu      sync.RWMutex
	loading []LoadingFunc

	wg sync.WaitGroup
}

// Page is one page of a collection. View is only meaningful when HasTotal is true.
type Page struct {
	Body     []byte
	View     paginate.View
	HasTotal bool
}

const refreshFlightKey = "\x00token-refresh"

func New(opts Options) (*Orchestrator, error) {
	if opts.Transport == nil {
		return nil, types.Err(types.ErrInvalidConfig, nil, "orchestrator: transport is required")
	}
	if opts.RequestsPerMinute < 0 {
		return nil, types.Err(types.ErrInvalidConfig, nil, "orchestrator: requests per minute must be non-negative")
	}
	c := opts.Cache
	if c == nil {
		c = cache.NewTTL[[]byte](types.DefaultCacheSize, types.DefaultCacheTTL*time.Second)
	}
	wait := opts.DebounceWait
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}
	return &Orchestrator{
		opts:     opts,
		cache:    c,
		debounce: ratecontrol.NewKeyedDebouncer(wait, nil),
	}, nil
}

func (o *Orchestrator) Cache() *cache.TTL[[]byte] { return o.cache }

func (o *Orchestrator) Session() *session.Guard { return o.opts.Session }

// CachedGet returns the body cached under Key(endpoint, params) or fetches it. Concurrent misses on
// one key share a single transport call. A non-positive ttl uses the cache default.
func (o *Orchestrator) CachedGet(ctx context.Context, endpoint string, ttl time.Duration, params cache.Params) ([]byte, error) {
	key, err := cache.Key(endpoint, params)
	if err != nil {
		return nil, err
	}
	if body, ok := o.lookup(key); ok {
		log.WithField("key", key).Debug("cache hit")
		return body, nil
	}
	log.WithField("key", key).Debug("cache miss")
	// The flight outlives any single caller, so it runs detached from ctx cancellation; each caller
	// still stops waiting when its own ctx is done.
	flightCtx := context.WithoutCancel(ctx)
	ch := o.flights.DoChan(key, func() (any, error) {
		if body, ok := o.lookup(key); ok {
			return body, nil
		}
		body, err := o.perform(flightCtx, types.MethodGet, key, nil)
		if err != nil {
			return nil, err
		}
		if err := o.store(key, body, ttl); err != nil {
			return nil, err
		}
		return body, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		body := res.Val.([]byte)
		if res.Shared {
			body = append([]byte(nil), body...)
		}
		return body, nil
	}
}

// Invalidate drops every cached key containing pattern.
func (o *Orchestrator) Invalidate(pattern string) int {
	n := o.cache.InvalidatePattern(pattern)
	log.WithFields(log.Fields{"pattern": pattern, "removed": n}).Debug("cache invalidated")
	return n
}

// PaginatedGet fetches one page, adding page and limit to the query. With useCache false the cache is
// neither read nor written.
func (o *Orchestrator) PaginatedGet(ctx context.Context, endpoint string, page, limit int, useCache bool) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = types.DefaultItemsPerPage
	}
	params := cache.Params{"page": page, "limit": limit}
	var (
		body []byte
		err  error
	)
	if useCache {
		body, err = o.CachedGet(ctx, endpoint, 0, params)
	} else {
		var key string
		if key, err = cache.Key(endpoint, params); err == nil {
			body, err = o.perform(ctx, types.MethodGet, key, nil)
		}
	}
	if err != nil {
		return Page{}, err
	}
	out := Page{Body: body}
	if o.opts.TotalExpr == "" {
		return out, nil
	}
	total, ok, err := EvalCount(o.opts.TotalExpr, body)
	if err != nil {
		log.WithError(err).WithField("endpoint", endpoint).Warn("failed to evaluate total expression")
		return out, nil
	}
	if ok {
		p := paginate.New(limit)
		p.SetTotal(total)
		out.View = p.PageData(page)
		out.HasTotal = true
	}
	return out, nil
}

// AddLoadingCallback registers an observer told true when an async call starts and false when it ends.
func (o *Orchestrator) AddLoadingCallback(fn LoadingFunc) {
	o.mu.Lock()
	o.loading = append(o.loading, fn)
	o.mu.Unlock()
}

// AsyncGet runs a GET on its own goroutine and delivers the result through the dispatcher.
func (o *Orchestrator) AsyncGet(ctx context.Context, endpoint string, onSuccess SuccessFunc, onError ErrorFunc, useCache bool) {
	o.dispatch(ctx, types.MethodGet, endpoint, func(ctx context.Context) ([]byte, error) {
		if useCache {
			return o.CachedGet(ctx, endpoint, 0, nil)
		}
		return o.perform(ctx, types.MethodGet, endpoint, nil)
	}, onSuccess, onError, nil)
}

// AsyncPost runs a POST on its own goroutine. On success every cached key containing the endpoint's
// first path segment is dropped so related collections are refetched.
func (o *Orchestrator) AsyncPost(ctx context.Context, endpoint string, data any, onSuccess SuccessFunc, onError ErrorFunc) {
	o.dispatch(ctx, types.MethodPost, endpoint, func(ctx context.Context) ([]byte, error) {
		return o.perform(ctx, types.MethodPost, endpoint, data)
	}, onSuccess, onError, func() {
		if seg := Partition(endpoint); seg != "" {
			o.Invalidate(seg)
		}
	})
}

// DebouncedGet collapses bursts of AsyncGet calls sharing slot into the last one.
func (o *Orchestrator) DebouncedGet(ctx context.Context, slot, endpoint string, onSuccess SuccessFunc, onError ErrorFunc, useCache bool) {
	o.debounce.Debounce(slot, func() {
		o.AsyncGet(ctx, endpoint, onSuccess, onError, useCache)
	})
}

// CancelDebounced drops a pending DebouncedGet. Calls already dispatched are not affected.
func (o *Orchestrator) CancelDebounced(slot string) bool {
	return o.debounce.Cancel(slot)
}

// Wait blocks until every async call dispatched so far has handed its result to the dispatcher.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Partition returns the first path segment of endpoint: "/events/1?x=2" -> "events".
func Partition(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		endpoint = endpoint[:i]
	}
	seg, _, _ := strings.Cut(strings.TrimLeft(endpoint, "/"), "/")
	return seg
}

func (o *Orchestrator) dispatch(ctx context.Context,
	method types.Method,
	endpoint string,
	call func(ctx context.Context) ([]byte, error),
	onSuccess SuccessFunc,
	onError ErrorFunc,
	afterSuccess func(),
) {
	logger := log.WithFields(log.Fields{
		"request_id": uuid.New().String(),
		"method":     method,
		"endpoint":   endpoint,
	})
	o.wg.Add(1)
	o.deliver(func() { o.notifyLoading(true) })
	go func() {
		defer o.wg.Done()
		started := time.Now()
		body, err := call(ctx)
		if err == nil && afterSuccess != nil {
			afterSuccess()
		}
		logger = logger.WithField("elapsed_ms", time.Since(started).Milliseconds())
		o.deliver(func() {
			defer o.notifyLoading(false)
			if err != nil {
				logger.WithError(err).Debug("async request failed")
				if onError == nil {
					logger.WithError(err).Error("async request failed with no error handler")
					return
				}
				safeCall(logger, "error callback", func() { onError(err) })
				return
			}
			logger.Debug("async request succeeded")
			if onSuccess != nil {
				safeCall(logger, "success callback", func() { onSuccess(body) })
			}
		})
	}()
}

func (o *Orchestrator) deliver(fn func()) {
	if o.opts.Dispatcher != nil {
		o.opts.Dispatcher(fn)
		return
	}
	fn()
}

func (o *Orchestrator) notifyLoading(loading bool) {
	o.mu.RLock()
	obs := append([]LoadingFunc(nil), o.loading...)
	o.mu.RUnlock()
	for _, fn := range obs {
		safeCall(log.WithField("loading", loading), "loading callback", func() { fn(loading) })
	}
}

// safeCall runs a caller-supplied callback; a panic is logged and swallowed.
func safeCall(logger *log.Entry, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Warnf("recovered from panicking %s", what)
		}
	}()
	fn()
}

// perform runs the session, token refresh and rate checks, then the transport call.
func (o *Orchestrator) perform(ctx context.Context, method types.Method, endpoint string, payload any) ([]byte, error) {
	if g := o.opts.Session; g != nil {
		o.maybeRefreshToken(ctx, g)
		if err := g.Err(); err != nil {
			if !o.opts.AllowAnonymous {
				return nil, err
			}
		} else if tok, ok := g.Token(); ok {
			ctx = ports.WithToken(ctx, tok)
		}
	}
	if o.opts.RateLimiter != nil && o.opts.RequestsPerMinute > 0 {
		scope := "ENDPOINT:" + Partition(endpoint)
		ok, err := o.opts.RateLimiter.Acquire(ctx, scope, o.opts.RequestsPerMinute, time.Minute)
		if err != nil {
			log.WithError(err).Error("failed to acquire endpoint rate limit")
			return nil, fmt.Errorf("rate limit check failed: %w", err)
		}
		if !ok {
			return nil, types.Err(types.ErrRateLimited, nil, "scope %s", scope)
		}
	}
	body, err := o.opts.Transport.Perform(ctx, method, endpoint, payload)
	if err != nil {
		if te, ok := types.AsTransportError(err); ok && te.Kind == types.AuthRejected {
			o.authRejected(te.Status)
		}
		return nil, err
	}
	return body, nil
}

func (o *Orchestrator) authRejected(status int) {
	logger := log.WithField("status", status)
	logger.Warn("transport rejected credentials, clearing session")
	if o.opts.Session != nil {
		o.opts.Session.Clear()
	}
	if o.opts.OnAuthError != nil {
		safeCall(logger, "auth error callback", func() { o.opts.OnAuthError(status) })
	}
}

// maybeRefreshToken swaps in a new token when the current one is close to expiry. Failures are
// logged and the request continues with the current token.
func (o *Orchestrator) maybeRefreshToken(ctx context.Context, g *session.Guard) {
	if o.opts.RefreshToken == nil || o.opts.RefreshThreshold <= 0 || !g.IsTokenExpiringSoon(o.opts.RefreshThreshold) {
		return
	}
	_, err, _ := o.flights.Do(refreshFlightKey, func() (any, error) {
		if !g.IsTokenExpiringSoon(o.opts.RefreshThreshold) {
			return nil, nil
		}
		tok, ttl, err := o.opts.RefreshToken(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if !g.UpdateToken(tok, ttl) {
			return nil, errors.New("session ended before the refreshed token arrived")
		}
		log.Info("session token refreshed")
		return nil, nil
	})
	if err != nil {
		log.WithError(err).Warn("token refresh failed")
	}
}

// lookup reads and decompresses a cached body. An undecodable entry is dropped and reported as a miss.
func (o *Orchestrator) lookup(key string) ([]byte, bool) {
	raw, ok := o.cache.Get(key)
	if !ok {
		return nil, false
	}
	if o.opts.Codec == nil {
		return append([]byte(nil), raw...), true
	}
	body, err := o.opts.Codec.Decode(raw)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("dropping undecodable cache entry")
		o.cache.Invalidate(key)
		return nil, false
	}
	return body, true
}

// store validates and compresses body, then writes it. Nothing is written when validation fails.
func (o *Orchestrator) store(key string, body []byte, ttl time.Duration) error {
	return o.cache.SetFunc(key, ttl, func() ([]byte, error) {
		if !json.Valid(body) {
			return nil, types.Err(types.ErrEncode, nil, "%s: response is not JSON", key)
		}
		if o.opts.Codec == nil {
			return append([]byte(nil), body...), nil
		}
		return o.opts.Codec.Encode(body), nil
	})
}
