package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// bucketRedis emulates the token bucket script for a single fixed instant
type bucketRedis struct {
	tokens map[string]int64
	err    error
}

func (r *bucketRedis) run(keys []string, args []interface{}) *redis.Cmd {
	if r.err != nil {
		return redis.NewCmdResult(nil, r.err)
	}
	key := keys[0]
	if _, ok := r.tokens[key]; !ok {
		r.tokens[key] = int64(args[1].(int))
	}
	if r.tokens[key] == 0 {
		return redis.NewCmdResult([]interface{}{int64(0), int64(0), int64(2000)}, nil)
	}
	r.tokens[key]--
	return redis.NewCmdResult([]interface{}{int64(1), r.tokens[key], int64(0)}, nil)
}

func (r *bucketRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return r.run(keys, args)
}

func (r *bucketRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return r.run(keys, args)
}

func (r *bucketRedis) EvalRO(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return r.run(keys, args)
}

func (r *bucketRedis) EvalShaRO(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return r.run(keys, args)
}

func (r *bucketRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (r *bucketRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func rateLimitedRouter(limiter *services.RateLimitService, staffID uuid.UUID) *gin.Engine {
	router := setupTestRouter()
	router.POST("/redeem",
		func(c *gin.Context) {
			c.Set(StaffContextKey, StaffContext{StaffID: staffID})
			c.Next()
		},
		RateLimit(limiter, StaffOrIPKey("redeem"), quietLogger()),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	return router
}

func TestRateLimit_BlocksWhenBucketEmpty(t *testing.T) {
	limiter := services.NewRateLimitService(&bucketRedis{tokens: map[string]int64{}}, config.RateLimitConfig{Capacity: 2, RefillInterval: 2 * time.Second})
	router := rateLimitedRouter(limiter, uuid.New())

	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		last = httptest.NewRecorder()
		router.ServeHTTP(last, httptest.NewRequest(http.MethodPost, "/redeem", nil))
		codes[i] = last.Code
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "too_many_requests")
}

func TestRateLimit_SeparateBucketsPerStaff(t *testing.T) {
	limiter := services.NewRateLimitService(&bucketRedis{tokens: map[string]int64{}}, config.RateLimitConfig{Capacity: 1, RefillInterval: time.Second})

	for _, id := range []uuid.UUID{uuid.New(), uuid.New()} {
		w := httptest.NewRecorder()
		rateLimitedRouter(limiter, id).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/redeem", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := services.NewRateLimitService(&bucketRedis{err: errors.New("connection refused")}, config.RateLimitConfig{Capacity: 1, RefillInterval: time.Second})
	router := rateLimitedRouter(limiter, uuid.New())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/redeem", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_NilLimiter(t *testing.T) {
	router := rateLimitedRouter(nil, uuid.New())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/redeem", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStaffOrIPKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.9:5555"

	assert.Equal(t, "redeem:ip:203.0.113.9", StaffOrIPKey("redeem")(c))

	id := uuid.New()
	c.Set(StaffContextKey, StaffContext{StaffID: id})
	assert.Equal(t, "redeem:staff:"+id.String(), StaffOrIPKey("redeem")(c))
}
