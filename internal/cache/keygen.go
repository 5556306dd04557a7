package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/structcache/structcache/pkg/schema"
	"github.com/structcache/structcache/pkg/types"
)

// Generator produces deterministic cache keys for requests. It is a pure
// fingerprint over the request's semantic fields; two semantically equal
// requests always map to the same key.
type Generator struct {
	// Prefix is prepended to all generated keys.
	Prefix string

	// fingerprints memoizes schema fingerprints. Reflection over the same
	// prototype type always yields the same shape, so entries are keyed by
	// schema name plus prototype type.
	fingerprints *gocache.Cache
}

// NewGenerator creates a key generator with the given key prefix.
func NewGenerator(prefix string) *Generator {
	return &Generator{
		Prefix:       prefix,
		fingerprints: gocache.New(30*time.Minute, time.Hour),
	}
}

// Key fingerprints a request. The hash covers the normalized prompt, schema
// identity, task type, model (or the auto sentinel), and the canonical
// provider-options serialization.
func (g *Generator) Key(req *types.Request) string {
	var sb strings.Builder
	sb.WriteString("prompt:")
	sb.WriteString(req.NormalizedPrompt())
	sb.WriteString("|schema:")
	sb.WriteString(g.SchemaFingerprint(req.Schema))
	sb.WriteString("|task:")
	sb.WriteString(string(req.EffectiveTaskType()))
	sb.WriteString("|model:")
	sb.WriteString(req.ModelOrAuto())
	if opts := req.CanonicalOptions(); opts != "" {
		sb.WriteString("|opts:")
		sb.WriteString(opts)
	}

	sum := sha256.Sum256([]byte(sb.String()))
	hash := hex.EncodeToString(sum[:])

	if g.Prefix != "" {
		return g.Prefix + ":" + hash
	}
	return hash
}

// SchemaFingerprint returns a short hash of the schema's serialized shape,
// so cache entries are invalidated when a schema changes shape even if its
// display name stays the same. When shape serialization fails the declared
// name is hashed instead; the caller never sees an error.
func (g *Generator) SchemaFingerprint(s schema.Schema) string {
	memoKey := fmt.Sprintf("%s|%T", s.Name, s.Prototype)
	if cached, ok := g.fingerprints.Get(memoKey); ok {
		return cached.(string)
	}

	var sum [sha256.Size]byte
	if shape, err := s.ShapeJSON(); err == nil {
		sum = sha256.Sum256(shape)
	} else {
		sum = sha256.Sum256([]byte("name:" + s.Name))
	}
	fp := hex.EncodeToString(sum[:])[:16]

	g.fingerprints.SetDefault(memoKey, fp)
	return fp
}
