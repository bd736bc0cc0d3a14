// Package memory 是进程内的向量索引，暴力计算余弦相似度。
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"mcp-knowledge-go/internal/model"
)

type entry struct {
	record model.IndexRecord
	seq    int
}

// Index 按 ID 覆盖写入，检索时相似度相同的记录按写入先后排序。
type Index struct {
	mu      sync.RWMutex
	name    string
	entries map[string]*entry
	nextSeq int
}

// New 创建一个空索引。
func New(name string) *Index {
	return &Index{name: name, entries: map[string]*entry{}}
}

func (s *Index) Upsert(_ context.Context, records []model.IndexRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Metadata = r.Metadata.Clone()
		if existing, ok := s.entries[r.ID]; ok {
			existing.record = r
			continue
		}
		s.entries[r.ID] = &entry{record: r, seq: s.nextSeq}
		s.nextSeq++
	}
	return nil
}

func (s *Index) Query(ctx context.Context, vector []float32, topK int, filter model.Metadata) ([]model.IndexHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		e   *entry
		sim float64
	}
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.record.Metadata.Matches(filter) {
			continue
		}
		candidates = append(candidates, scored{e: e, sim: cosine(vector, e.record.Vector)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]model.IndexHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, model.IndexHit{
			ID:       c.e.record.ID,
			Text:     c.e.record.Text,
			Distance: 1 - c.sim,
			Metadata: c.e.record.Metadata.Clone(),
		})
	}
	return hits, nil
}

func (s *Index) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *Index) Name() string     { return s.name }
func (s *Index) Location() string { return "memory" }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
