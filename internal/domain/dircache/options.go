package dircache

const defaultMaxSize = 10_000

// Option configures a Cache.
type Option func(*Cache)

// WithMaxSize bounds the number of entries. Zero or less disables caching;
// every Get goes to the loader.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		c.maxSize = n
	}
}
