package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"multichat/internal/files"
	"multichat/internal/middleware"
)

// UploadFile accepts a multipart upload and extracts its text for use
// as conversation context.
func (h *Handler) UploadFile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file field is required", "INVALID_REQUEST")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read uploaded file", "INVALID_REQUEST")
		return
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	stored, err := h.Files.Upload(c.Request.Context(), userID, fileHeader.Filename, contentType, src)
	if err != nil {
		if errors.Is(err, files.ErrTooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, err.Error(), "FILE_TOO_LARGE")
			return
		}
		respondError(c, http.StatusInternalServerError, "Upload failed", "UPLOAD_FAILED")
		return
	}
	respondOK(c, http.StatusCreated, stored)
}

// ListFiles returns the user's uploaded files.
func (h *Handler) ListFiles(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	list, err := h.Files.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to list files", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, list)
}

// DownloadFile streams the original file back to its owner.
func (h *Handler) DownloadFile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	fileID, ok := pathID(c, "id")
	if !ok {
		return
	}

	reader, stored, err := h.Files.Open(c.Request.Context(), userID, fileID)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			respondError(c, http.StatusNotFound, "File not found", "NOT_FOUND")
			return
		}
		respondError(c, http.StatusInternalServerError, "Download failed", "DOWNLOAD_FAILED")
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", `attachment; filename="`+stored.Name+`"`)
	c.Header("Content-Type", stored.ContentType)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		// Headers already sent; nothing sensible left to return.
		_ = c.Error(err)
	}
}

// DeleteFile removes a file and its stored blob.
func (h *Handler) DeleteFile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	fileID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Files.Delete(c.Request.Context(), userID, fileID); err != nil {
		if errors.Is(err, files.ErrNotFound) {
			respondError(c, http.StatusNotFound, "File not found", "NOT_FOUND")
			return
		}
		respondError(c, http.StatusInternalServerError, "Delete failed", "DELETE_FAILED")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}
