package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/internal/service"
	"mcp-knowledge-go/pkg/log"
)

// DocumentHandler 负责文档目录的查询接口。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// List 按 domain、status 过滤文档，按上传时间倒序。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documentService.ListViews(c.Request.Context(), c.Query("domain"), model.DocumentStatus(c.Query("status")))
	if err != nil {
		log.Error("[DocumentHandler] 查询文档列表失败", err)
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Get 返回单个文档及其处理日志。
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parseDocumentID(c)
	if !ok {
		return
	}
	detail, err := h.documentService.Get(c.Request.Context(), id)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		respondError(c, http.StatusNotFound, "文档不存在")
		return
	}
	if err != nil {
		log.Error("[DocumentHandler] 查询文档失败", err)
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Delete 尚未实现。
func (h *DocumentHandler) Delete(c *gin.Context) {
	if _, ok := parseDocumentID(c); !ok {
		return
	}
	respondError(c, http.StatusNotImplemented, "Delete document not yet implemented")
}

func parseDocumentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文档 ID")
		return 0, false
	}
	return uint(id), true
}
