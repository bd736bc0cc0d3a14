package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/metrics"
)

const (
	compareTopK       = 3
	versionTopK       = 5
	versionLimit      = 5
	compatibilityTopK = 3
	compatibilityMax  = 5
	snippetChars      = 300
	subQueryParallel  = 4
)

// DefaultCompareAspects 未指定对比维度时使用。
var DefaultCompareAspects = []string{"speed", "power", "compatibility"}

// Searcher 执行单次语义检索，失败时返回空结果。
type Searcher interface {
	Query(ctx context.Context, text string, topK int, filter model.Metadata) []model.QueryResult
}

// SearchRequest 描述一次检索。Category 为空或 "all" 表示不限分类。
type SearchRequest struct {
	Query    string
	Category string
	Limit    int
	// PostFilter 为 true 时只保留所属文档标签包含 Category 的结果。
	PostFilter bool
}

// AspectEntry 是某个对象在某个维度上的对比内容。
type AspectEntry struct {
	Entity string             `json:"entity"`
	Found  bool               `json:"found"`
	Text   string             `json:"text"`
	Result *model.QueryResult `json:"result,omitempty"`
}

// AspectComparison 是一个维度下两个对象的对比。
type AspectComparison struct {
	Aspect  string        `json:"aspect"`
	Entries []AspectEntry `json:"entries"`
}

// Comparison 是 Compare 的结构化结果。
type Comparison struct {
	First   string             `json:"first"`
	Second  string             `json:"second"`
	Aspects []AspectComparison `json:"aspects"`
}

// QueryService 在向量检索之上组合出多种查询策略。
type QueryService interface {
	Search(ctx context.Context, req SearchRequest) []model.QueryResult
	Compare(ctx context.Context, first, second string, aspects []string) Comparison
	VersionHistory(ctx context.Context, entity string) []model.QueryResult
	Compatibility(ctx context.Context, source, target string) []model.QueryResult
}

type queryService struct {
	searcher   Searcher
	docRepo    repository.DocumentRepository
	categories map[string]string
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(searcher Searcher, docRepo repository.DocumentRepository, categories []config.CategoryConfig) QueryService {
	m := make(map[string]string, len(categories))
	for _, c := range categories {
		m[strings.ToLower(c.Name)] = c.Description
	}
	return &queryService{searcher: searcher, docRepo: docRepo, categories: m}
}

func observe(strategy string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

// Search 已知分类会把分类名与描述拼进查询文本。
func (s *queryService) Search(ctx context.Context, req SearchRequest) []model.QueryResult {
	defer observe("search", time.Now())

	category := strings.ToLower(strings.TrimSpace(req.Category))
	text := req.Query
	if desc, ok := s.categories[category]; ok && category != "all" {
		text = req.Query + " " + category + " " + desc
	}
	log.Infof("[QueryService] 检索, query: '%s', category: '%s', limit: %d", req.Query, category, req.Limit)

	results := s.searcher.Query(ctx, text, req.Limit, nil)
	if !req.PostFilter || category == "" || category == "all" || len(results) == 0 {
		return results
	}
	return s.filterByTag(ctx, results, category, req.Limit)
}

func (s *queryService) filterByTag(ctx context.Context, results []model.QueryResult, tag string, limit int) []model.QueryResult {
	ids := make([]uint, 0, len(results))
	for _, r := range results {
		if id, ok := r.DocumentID(); ok {
			ids = append(ids, id)
		}
	}
	docs, err := s.docRepo.FindBatchByIDs(ctx, ids)
	if err != nil {
		log.Errorf("[QueryService] 加载结果所属文档失败: %v", err)
		return []model.QueryResult{}
	}
	byID := make(map[uint]model.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	filtered := []model.QueryResult{}
	for _, r := range results {
		id, ok := r.DocumentID()
		if !ok {
			continue
		}
		if doc, found := byID[id]; found && doc.HasTag(tag) {
			filtered = append(filtered, r)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// fanOut 并发执行多条查询，结果按查询顺序返回。
func (s *queryService) fanOut(ctx context.Context, queries []string, topK int) [][]model.QueryResult {
	out := make([][]model.QueryResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(subQueryParallel)
	for i, q := range queries {
		g.Go(func() error {
			out[i] = s.searcher.Query(gctx, q, topK, nil)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *queryService) Compare(ctx context.Context, first, second string, aspects []string) Comparison {
	defer observe("compare", time.Now())
	if len(aspects) == 0 {
		aspects = DefaultCompareAspects
	}
	entities := []string{first, second}

	queries := make([]string, 0, len(entities)*len(aspects))
	for _, e := range entities {
		for _, a := range aspects {
			queries = append(queries, e+" "+a+" specification features")
		}
	}
	batches := s.fanOut(ctx, queries, compareTopK)

	pool := make(map[string][]model.QueryResult, len(entities))
	for i, e := range entities {
		for j := range aspects {
			pool[e] = append(pool[e], batches[i*len(aspects)+j]...)
		}
	}

	c := Comparison{First: first, Second: second, Aspects: make([]AspectComparison, 0, len(aspects))}
	for _, a := range aspects {
		ac := AspectComparison{Aspect: a}
		for _, e := range entities {
			ac.Entries = append(ac.Entries, pickAspect(e, a, pool[e]))
		}
		c.Aspects = append(c.Aspects, ac)
	}
	return c
}

// pickAspect 选出正文提到该维度的最高分结果，同分取先出现的。
func pickAspect(entity, aspect string, candidates []model.QueryResult) AspectEntry {
	needle := strings.ToLower(aspect)
	var best *model.QueryResult
	for i := range candidates {
		r := &candidates[i]
		if !strings.Contains(strings.ToLower(r.Text), needle) {
			continue
		}
		if best == nil || r.Score > best.Score {
			best = r
		}
	}
	if best == nil {
		return AspectEntry{
			Entity: entity,
			Text:   "No specific " + aspect + " information found for " + entity + ".",
		}
	}
	picked := *best
	return AspectEntry{Entity: entity, Found: true, Text: Snippet(picked.Text, snippetChars) + "...", Result: &picked}
}

// Snippet 返回前 n 个字符。
func Snippet(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}

func (s *queryService) VersionHistory(ctx context.Context, entity string) []model.QueryResult {
	defer observe("version_history", time.Now())
	queries := []string{
		entity + " version history evolution",
		entity + " 1.0 2.0 3.0 4.0 5.0 specifications",
		entity + " generation timeline development",
	}

	best := map[string]int{}
	merged := []model.QueryResult{}
	for _, batch := range s.fanOut(ctx, queries, versionTopK) {
		for _, r := range batch {
			if i, seen := best[r.ID]; seen {
				if r.Score > merged[i].Score {
					merged[i] = r
				}
				continue
			}
			best[r.ID] = len(merged)
			merged = append(merged, r)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > versionLimit {
		merged = merged[:versionLimit]
	}
	return merged
}

func (s *queryService) Compatibility(ctx context.Context, source, target string) []model.QueryResult {
	defer observe("compatibility", time.Now())
	queries := []string{
		source + " " + target + " compatibility backward forward",
		source + " compatible with " + target,
		target + " supports " + source,
		"interoperability " + source + " " + target,
	}

	out := []model.QueryResult{}
	for _, batch := range s.fanOut(ctx, queries, compatibilityTopK) {
		out = append(out, batch...)
	}
	if len(out) > compatibilityMax {
		out = out[:compatibilityMax]
	}
	return out
}
