package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hrassist/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

// Decision is one limiter verdict for a key.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts requests per key. The memory limiter is per process; the redis limiter is
// shared by every replica pointed at the same server.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type rateLimiter struct {
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	redis   *redis.Client
	prefix  string
	limiter Limiter
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

// WithRedis moves the counters into redis under prefix.
func WithRedis(client *redis.Client, prefix string) RateLimitOption {
	return func(rl *rateLimiter) {
		rl.redis = client
		rl.prefix = prefix
	}
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit applies tighter budgets to credential endpoints (per ip and per
// identity) and to administrative mutations (per actor).
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, client *redis.Client) func(http.Handler) http.Handler {
	authLimit := max(baseLimit/4, 1)
	mutationLimit := max(baseLimit/2, 1)
	authByIP := newRateLimiter(authLimit, window, clientIPKey, WithRedis(client, "rl:auth:ip:"))
	authByIdentity := newRateLimiter(authLimit, window, AuthIdentityOrIPKey("employee_id"), WithRedis(client, "rl:auth:id:"))
	sensitiveByActor := newRateLimiter(mutationLimit, window, actorOrIPKey, WithRedis(client, "rl:mut:"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sensitiveRateScope(r) {
			case sensitiveScopeAuth:
				if !authByIP.enforce(w, r) {
					return
				}
				if !authByIdentity.enforce(w, r) {
					return
				}
			case sensitiveScopeActor:
				if !sensitiveByActor.enforce(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthIdentityOrIPKey keys credential requests by the identity named in the JSON body.
// An ADMIN request without an id shares the "role:ADMIN" bucket.
func AuthIdentityOrIPKey(field string) RateLimitKeyFunc {
	normalizedField := strings.TrimSpace(field)
	if normalizedField == "" {
		normalizedField = "employee_id"
	}
	return func(r *http.Request) string {
		payload := readJSONBody(r)
		if value, _ := payload[normalizedField].(string); strings.TrimSpace(value) != "" {
			return "identity:" + strings.ToLower(strings.TrimSpace(value))
		}
		if role, _ := payload["role"].(string); strings.EqualFold(strings.TrimSpace(role), "admin") {
			return "role:ADMIN"
		}
		return clientIPKey(r)
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.ID != "" {
		return "user:" + user.ID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if len(parts) > 0 {
			value := strings.TrimSpace(parts[0])
			if value != "" {
				return value
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc, opts ...RateLimitOption) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	rl := &rateLimiter{limit: limit, window: window, keyFn: keyFn}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.limit > 0 && rl.window > 0 {
		if rl.redis != nil {
			rl.limiter = NewRedisLimiter(rl.redis, rl.prefix, rl.limit, rl.window)
		} else {
			rl.limiter = NewMemoryLimiter(rl.limit, rl.window)
		}
	}
	return rl
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limiter == nil {
		return true
	}

	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	decision, err := rl.limiter.Allow(r.Context(), key)
	if err != nil {
		zap.L().Warn("rate limit store unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	resetIn := durationSeconds(decision.ResetIn)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(decision.Remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetIn))

	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(max(resetIn, 1)))
		zap.L().Warn("rate limit exceeded",
			zap.String("key", key),
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Int("limit", rl.limit),
			zap.Int("windowSec", int(rl.window.Seconds())),
		)
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}
	return true
}

// MemoryLimiter keeps one token bucket per key, refilling limit tokens per window.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	every     rate.Limit
	window    time.Duration
	buckets   map[string]*memoryBucket
	lastSweep time.Time
}

type memoryBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:     limit,
		every:     rate.Every(window / time.Duration(limit)),
		window:    window,
		buckets:   map[string]*memoryBucket{},
		lastSweep: time.Now(),
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)
	bucket, ok := m.buckets[key]
	if !ok {
		bucket = &memoryBucket{limiter: rate.NewLimiter(m.every, m.limit)}
		m.buckets[key] = bucket
	}
	bucket.seen = now

	allowed := bucket.limiter.AllowN(now, 1)
	tokens := bucket.limiter.TokensAt(now)
	var resetIn time.Duration
	if tokens < 1 {
		resetIn = time.Duration((1 - tokens) * float64(time.Second) / float64(m.every))
	}
	return Decision{Allowed: allowed, Remaining: int(tokens), ResetIn: resetIn}, nil
}

// sweep drops buckets idle for a full window; they would be full again anyway.
func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	for key, bucket := range m.buckets {
		if now.Sub(bucket.seen) >= m.window {
			delete(m.buckets, key)
		}
	}
	m.lastSweep = now
}

// RedisLimiter is a fixed-window counter: INCR plus PEXPIRE on a key per window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	redisKey := l.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}
	count := int(incr.Val())
	resetIn := time.Duration(int64(l.window) - now.UnixNano()%int64(l.window))
	return Decision{Allowed: count <= l.limit, Remaining: l.limit - count, ResetIn: resetIn}, nil
}

func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d.Seconds())
	if seconds <= 0 {
		return 1
	}
	return seconds
}

// readJSONBody decodes a JSON body and restores it for the handler.
func readJSONBody(r *http.Request) map[string]any {
	if r == nil || r.Body == nil {
		return nil
	}
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if !strings.Contains(contentType, "application/json") {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if len(raw) == 0 {
		return nil
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload
}

type sensitiveScope string

const (
	sensitiveScopeNone  sensitiveScope = ""
	sensitiveScopeAuth  sensitiveScope = "auth"
	sensitiveScopeActor sensitiveScope = "actor"
)

func sensitiveRateScope(r *http.Request) sensitiveScope {
	if r == nil {
		return sensitiveScopeNone
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return sensitiveScopeNone
	}

	switch normalizedAPIPath(r.URL.Path) {
	case "/auth/request-otp", "/auth/verify-otp":
		return sensitiveScopeAuth
	case "/leave/decide", "/dataset/identities", "/policy/documents", "/policy/reindex":
		return sensitiveScopeActor
	}
	return sensitiveScopeNone
}

func normalizedAPIPath(path string) string {
	cleaned := strings.TrimSpace(path)
	cleaned = strings.TrimPrefix(cleaned, "/api/v1")
	if cleaned == "" {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		return "/" + cleaned
	}
	return cleaned
}
