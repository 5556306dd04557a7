package types

// Result is the typed outcome of a successful request.
type Result struct {
	// Value is a pointer to the schema's struct type, populated from the
	// validated model output (or from the cache).
	Value any

	// Raw is the serialized form of Value as stored in the cache.
	Raw []byte

	// Cached reports whether the value was served from the cache without a
	// generation call.
	Cached bool

	// Model and Provider identify the deployment that produced the value.
	// Empty for cache hits recorded before these were known.
	Model    string
	Provider string

	// Attempts is the number of generation attempts consumed. Zero for
	// cache hits.
	Attempts int
}
