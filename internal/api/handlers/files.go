package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rebinmas/printserver/internal/files"
)

type FileHandler struct {
	store       *files.Store
	maxUploadMB int64
}

func NewFileHandler(store *files.Store, maxUploadMB int64) *FileHandler {
	return &FileHandler{store: store, maxUploadMB: maxUploadMB}
}

func (h *FileHandler) UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if header.Size > h.maxUploadMB*1024*1024 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds %d MB limit", h.maxUploadMB),
		})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	defer src.Close()

	ref, err := h.store.Save(header.Filename, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"file_id":       ref,
		"document_name": h.store.DocumentName(ref),
		"size":          header.Size,
	})
}

func (h *FileHandler) DeleteFile(c *gin.Context) {
	ref := c.Param("id")
	if err := h.store.Remove(ref); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}
