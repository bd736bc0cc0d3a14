package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mcp-knowledge-go/internal/service"
)

const defaultSearchLimit = 5

// SearchHandler 负责语义检索接口。
type SearchHandler struct {
	queryService service.QueryService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(queryService service.QueryService) *SearchHandler {
	return &SearchHandler{queryService: queryService}
}

// Search 处理 GET /search?q=&limit=&category=。
// category 只用于增强查询文本，不做标签过滤。
func (h *SearchHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		respondError(c, http.StatusBadRequest, "缺少查询参数 q")
		return
	}
	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "无效的 limit 参数")
			return
		}
		limit = n
	}

	results := h.queryService.Search(c.Request.Context(), service.SearchRequest{
		Query:    q,
		Category: c.Query("category"),
		Limit:    limit,
	})
	c.JSON(http.StatusOK, gin.H{"query": q, "results": results})
}
