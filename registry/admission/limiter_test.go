// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package admission_test

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sol.dev/sol/registry/admission"
)

func newTestLimiter(t *testing.T, config admission.LimiterConfig, start time.Time) (*admission.Limiter, *time.Time) {
	now := start
	limiter := admission.NewLimiter(zaptest.NewLogger(t), config)
	limiter.TestSetNow(func() time.Time { return now })
	return limiter, &now
}

func TestLimiter_TokenBucket(t *testing.T) {
	config := admission.DefaultLimiterConfig()
	config.AnonRate = 5
	config.AnonCapacity = 10

	limiter, now := newTestLimiter(t, config, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 10; i++ {
		decision := limiter.Allow("ip:client", false, 1)
		require.True(t, decision.Allowed, "request %d", i)
	}

	decision := limiter.Allow("ip:client", false, 1)
	require.False(t, decision.Allowed)
	assert.Equal(t, float64(10), decision.Limit)
	assert.Equal(t, float64(0), decision.Remaining)

	// one second refills five tokens
	*now = now.Add(time.Second)
	for i := 0; i < 5; i++ {
		decision := limiter.Allow("ip:client", false, 1)
		require.True(t, decision.Allowed, "request %d after refill", i)
	}
	require.False(t, limiter.Allow("ip:client", false, 1).Allowed)
}

func TestLimiter_RefillCapsAtCapacity(t *testing.T) {
	config := admission.DefaultLimiterConfig()
	config.AnonRate = 5
	config.AnonCapacity = 10

	limiter, now := newTestLimiter(t, config, time.Now())

	require.True(t, limiter.Allow("ip:client", false, 1).Allowed)

	*now = now.Add(time.Hour)
	decision := limiter.Allow("ip:client", false, 1)
	require.True(t, decision.Allowed)
	assert.Equal(t, float64(9), decision.Remaining)
}

func TestLimiter_Tiers(t *testing.T) {
	config := admission.DefaultLimiterConfig()
	config.AnonCapacity = 2
	config.AnonRate = 1
	config.AuthCapacity = 5
	config.AuthRate = 1

	limiter, _ := newTestLimiter(t, config, time.Now())

	anon := limiter.Allow("ip:anon", false, 1)
	assert.Equal(t, float64(2), anon.Limit)

	auth := limiter.Allow("user:42", true, 1)
	assert.Equal(t, float64(5), auth.Limit)
}

func TestLimiter_PathCosts(t *testing.T) {
	config := admission.DefaultLimiterConfig()
	config.PathCosts = map[string]float64{
		"/":             1,
		"/files/":       2,
		"/files/large/": 4,
		"/legacy/":      5,
	}

	limiter := admission.NewLimiter(zaptest.NewLogger(t), config)

	// the longest matching prefix wins
	assert.Equal(t, 1.0, limiter.Cost("/simple/flask/"))
	assert.Equal(t, 2.0, limiter.Cost("/files/flask/1.0/f.whl"))
	assert.Equal(t, 4.0, limiter.Cost("/files/large/blob"))
	assert.Equal(t, 5.0, limiter.Cost("/legacy/"))
	assert.Equal(t, 1.0, limiter.Cost("no-prefix-match"))
}

func TestLimiter_ExemptPaths(t *testing.T) {
	limiter := admission.NewLimiter(zaptest.NewLogger(t), admission.DefaultLimiterConfig())

	assert.True(t, limiter.Exempt("/health"))
	assert.True(t, limiter.Exempt("/metrics"))
	assert.False(t, limiter.Exempt("/simple/"))
	assert.False(t, limiter.Exempt("/files/x"))
}

func TestLimiter_StaleSweep(t *testing.T) {
	config := admission.DefaultLimiterConfig()
	config.CleanupInterval = time.Minute

	limiter, now := newTestLimiter(t, config, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	limiter.Allow("ip:a", false, 1)
	limiter.Allow("ip:b", false, 1)
	require.Equal(t, 2, limiter.BucketCount())

	// keep one client active past the stale horizon of the other
	*now = now.Add(90 * time.Second)
	limiter.Allow("ip:a", false, 1)

	*now = now.Add(90 * time.Second)
	limiter.Allow("ip:c", false, 1)

	// ip:b was last seen over two cleanup intervals ago
	assert.Equal(t, 2, limiter.BucketCount())
}

func TestLimiter_ResetHeader(t *testing.T) {
	config := admission.DefaultLimiterConfig()
	config.AnonRate = 5
	config.AnonCapacity = 10

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(t, config, start)

	decision := limiter.Allow("ip:client", false, 4)
	require.True(t, decision.Allowed)
	assert.Equal(t, float64(6), decision.Remaining)
	// four tokens at five per second
	assert.Equal(t, start.Add(800*time.Millisecond), decision.Reset)

	// a full bucket has no reset time
	full := limiter.Allow("ip:fresh", false, 0)
	assert.True(t, full.Reset.IsZero())
}

func TestLimiter_ConcurrentSameClient(t *testing.T) {
	config := admission.DefaultLimiterConfig()
	config.AnonRate = 0.001
	config.AnonCapacity = 100

	limiter := admission.NewLimiter(zaptest.NewLogger(t), config)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				if limiter.Allow("ip:shared", false, 1).Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 200 attempts against capacity 100 with negligible refill
	assert.Equal(t, 100, allowed)
}

func TestClientKey(t *testing.T) {
	assert.Equal(t, "user:42", admission.ClientKey("42", "key", "1.2.3.4", "5.6.7.8:1234"))

	keyDigest := sha256.Sum256([]byte("sol_abc_def"))
	assert.Equal(t,
		"apikey:"+hex.EncodeToString(keyDigest[:])[:16],
		admission.ClientKey("", "sol_abc_def", "1.2.3.4", "5.6.7.8:1234"))

	firstHash := md5.Sum([]byte("1.2.3.4"))
	assert.Equal(t,
		"ip:"+hex.EncodeToString(firstHash[:]),
		admission.ClientKey("", "", "1.2.3.4, 9.9.9.9", "5.6.7.8:1234"))

	peerHash := md5.Sum([]byte("5.6.7.8"))
	assert.Equal(t,
		"ip:"+hex.EncodeToString(peerHash[:]),
		admission.ClientKey("", "", "", "5.6.7.8:1234"))

	// raw addresses never appear in the key
	key := admission.ClientKey("", "", "", "5.6.7.8:1234")
	assert.NotContains(t, key, "5.6.7.8")
	assert.Equal(t, fmt.Sprintf("ip:%x", md5.Sum([]byte("unknown"))), admission.ClientKey("", "", "", ""))
}
