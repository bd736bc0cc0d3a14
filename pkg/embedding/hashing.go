package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"mcp-knowledge-go/pkg/metrics"
)

const defaultHashingDimensions = 384

type hashingClient struct {
	dims int
}

// NewHashingClient returns a deterministic bag-of-words embedder based on
// feature hashing. It needs no network and is used for offline mode and tests.
func NewHashingClient(dims int) Client {
	if dims <= 0 {
		dims = defaultHashingDimensions
	}
	return &hashingClient{dims: dims}
}

func (h *hashingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	normalize(vec)
	metrics.EmbeddingRequestsTotal.WithLabelValues("hashing", "fnv", "success").Inc()
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
