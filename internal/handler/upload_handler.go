package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/internal/service"
	"mcp-knowledge-go/pkg/log"
)

// UploadHandler 负责处理文档上传。
type UploadHandler struct {
	ingestService service.IngestService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(ingestService service.IngestService) *UploadHandler {
	return &UploadHandler{ingestService: ingestService}
}

// Upload 接收 multipart 表单：file、tags、description、domain。
// 文件被接受后立即返回，处理在后台进行。
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "缺少上传文件")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		log.Error("[UploadHandler] 打开上传文件失败", err)
		respondError(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		log.Error("[UploadHandler] 读取上传文件失败", err)
		respondError(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}

	outcome, err := h.ingestService.Ingest(c.Request.Context(), service.UploadRequest{
		FileName:    fileHeader.Filename,
		Content:     content,
		Tags:        c.PostForm("tags"),
		Description: c.PostForm("description"),
		Domain:      c.PostForm("domain"),
	})
	var catalogErr *repository.CatalogError
	if errors.As(err, &catalogErr) {
		respondError(c, http.StatusInternalServerError, catalogErr.Error())
		return
	}
	c.JSON(http.StatusOK, outcome)
}
