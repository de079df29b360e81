package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// FetchJSON fetches through c and decodes the response into a fresh T.
// Each caller decodes its own copy, so results may be mutated freely.
func FetchJSON[T any](ctx context.Context, c *RequestCache, method, path string, params Params, transport Transport) (T, error) {
	var out T
	data, err := c.Fetch(ctx, method, path, params, transport)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("cache: decode %s %s: %w", method, path, err)
	}
	return out, nil
}
