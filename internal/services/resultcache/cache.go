package resultcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cozy-creator/lesion-server/internal/predictor"
	"github.com/cozy-creator/lesion-server/internal/utils/hashutil"
)

// Cache memoizes prediction results by the blake3 digest of the uploaded
// bytes. Predictions are deterministic for a loaded model, so an entry never
// goes stale while the process lives.
type Cache struct {
	entries *lru.Cache[string, predictor.Result]
}

// New returns nil when size is zero; a nil *Cache is a valid, disabled cache.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}

	entries, err := lru.New[string, predictor.Result](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	return &Cache{entries: entries}, nil
}

func Key(data []byte) string {
	return hashutil.Blake3Hash(data)
}

// Get returns a copy of the cached result for key.
func (c *Cache) Get(key string) (*predictor.Result, bool) {
	if c == nil {
		return nil, false
	}

	result, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}

	result.AllPredictions = append([]predictor.Prediction(nil), result.AllPredictions...)
	return &result, true
}

func (c *Cache) Add(key string, result *predictor.Result) {
	if c == nil || result == nil {
		return
	}

	stored := *result
	stored.AllPredictions = append([]predictor.Prediction(nil), result.AllPredictions...)
	c.entries.Add(key, stored)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
