package cache_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/apicache/cache"
)

func ExampleBuildKey() {
	a, _ := cache.BuildKey("get", "/problem", cache.Params{"page": 2, "limit": 20})
	b, _ := cache.BuildKey("GET", "/problem", cache.Params{"limit": 20, "page": 2})

	fmt.Println(a)
	fmt.Println(a == b)
	// Output:
	// GET:/problem:{"limit":20,"page":2}
	// true
}

func ExamplePolicy_ResolveTTL() {
	p := cache.DefaultPolicy()

	fmt.Println(p.ResolveTTL("/api/website"))
	fmt.Println(p.ResolveTTL("/api/contest_rank"))
	fmt.Println(p.ResolveTTL("/api/profile"))
	// Output:
	// 30m0s
	// 2m0s
	// 5m0s
}

func ExamplePolicy_IsCacheable() {
	p := cache.DefaultPolicy()

	fmt.Println(p.IsCacheable("GET", "/api/problem"))
	fmt.Println(p.IsCacheable("POST", "/api/problem"))
	fmt.Println(p.IsCacheable("GET", "/api/captcha"))
	// Output:
	// true
	// false
	// false
}

func ExampleRequestCache_Fetch() {
	c, _ := cache.New(cache.DefaultConfig())
	defer c.Close()

	ctx := context.Background()
	calls := 0
	transport := func(_ context.Context, method, path string, _ cache.Params) ([]byte, error) {
		calls++
		return []byte(method + " " + path), nil
	}

	first, _ := c.Fetch(ctx, "GET", "/api/languages", nil, transport)
	second, _ := c.Fetch(ctx, "GET", "/api/languages", nil, transport)

	fmt.Println(string(first))
	fmt.Println(string(second))
	fmt.Println("transport calls:", calls)
	// Output:
	// GET /api/languages
	// GET /api/languages
	// transport calls: 1
}

func ExampleRequestCache_Fetch_errorsNotCached() {
	c, _ := cache.New(cache.DefaultConfig())
	defer c.Close()

	ctx := context.Background()
	calls := 0
	transport := func(context.Context, string, string, cache.Params) ([]byte, error) {
		calls++
		return nil, errors.New("upstream unavailable")
	}

	_, err1 := c.Fetch(ctx, "GET", "/api/problem", nil, transport)
	_, err2 := c.Fetch(ctx, "GET", "/api/problem", nil, transport)

	fmt.Println("Error 1:", err1)
	fmt.Println("Error 2:", err2)
	fmt.Println("transport calls:", calls)
	// Output:
	// Error 1: upstream unavailable
	// Error 2: upstream unavailable
	// transport calls: 2
}

func ExampleRequestCache_Invalidate() {
	c, _ := cache.New(cache.DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "GET:/problem/1:{}", []byte("x"), time.Minute)
	_ = c.Set(ctx, "GET:/problem/2:{}", []byte("y"), time.Minute)
	_ = c.Set(ctx, "GET:/contest/1:{}", []byte("z"), time.Minute)

	removed := c.Invalidate(ctx, "/problem/")
	st := c.Stats(ctx)

	fmt.Println("removed:", removed)
	fmt.Println("remaining:", st.Total)
	// Output:
	// removed: 2
	// remaining: 1
}

func ExampleFetchJSON() {
	c, _ := cache.New(cache.DefaultConfig())
	defer c.Close()

	transport := func(context.Context, string, string, cache.Params) ([]byte, error) {
		return []byte(`{"name":"OnlineJudge","version":"2.0"}`), nil
	}

	type website struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	w, err := cache.FetchJSON[website](context.Background(), c, "GET", "/api/website", nil, transport)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(w.Name, w.Version)
	// Output:
	// OnlineJudge 2.0
}
