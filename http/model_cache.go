package http

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"mlplayground/ml"
	"mlplayground/monitoring"
)

// ModelCache keeps decoded classifiers keyed by artifact digest so repeated
// predictions against the same posted model skip weight decoding.
type ModelCache struct {
	cache   *lru.Cache[string, ml.Classifier]
	metrics *monitoring.Metrics
}

func NewModelCache(size int, metrics *monitoring.Metrics) (*ModelCache, error) {
	cache, err := lru.New[string, ml.Classifier](size)
	if err != nil {
		return nil, err
	}
	return &ModelCache{cache: cache, metrics: metrics}, nil
}

func (c *ModelCache) Load(artifacts *ml.Artifacts) (ml.Classifier, error) {
	key := artifacts.Digest()
	if model, ok := c.cache.Get(key); ok {
		c.observe("hit")
		return model, nil
	}
	c.observe("miss")

	model, err := ml.LoadClassifier(artifacts)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, model)
	return model, nil
}

func (c *ModelCache) Len() int {
	return c.cache.Len()
}

func (c *ModelCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.ModelCache.WithLabelValues(result).Inc()
	}
}
