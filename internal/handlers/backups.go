package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mealvault/mealvault/internal/backup"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
	"github.com/mealvault/mealvault/pkg/response"
)

// BackupHandler exposes snapshot, restore, and transfer operations. Routes
// using it must sit behind the exclusive write gate because every operation
// closes the store file while it runs.
type BackupHandler struct {
	backups *backup.Coordinator
}

func NewBackupHandler(backups *backup.Coordinator) *BackupHandler {
	return &BackupHandler{backups: backups}
}

// Create handles POST /api/backups
func (h *BackupHandler) Create(c *gin.Context) {
	if h == nil || h.backups == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	meta, err := h.backups.Create(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, meta)
}

// List handles GET /api/backups
func (h *BackupHandler) List(c *gin.Context) {
	if h == nil || h.backups == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	metas, err := h.backups.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, metas)
}

// Restore handles POST /api/backups/:id/restore
func (h *BackupHandler) Restore(c *gin.Context) {
	if h == nil || h.backups == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("backup id is required"))
		return
	}

	if err := h.backups.Restore(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"restored": id})
}

// Delete handles DELETE /api/backups/:id
func (h *BackupHandler) Delete(c *gin.Context) {
	if h == nil || h.backups == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("backup id is required"))
		return
	}

	if err := h.backups.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Export handles GET /api/backups/export, streaming the live store image as a
// file download.
func (h *BackupHandler) Export(c *gin.Context) {
	if h == nil || h.backups == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", `attachment; filename="mealvault-export.db"`)
	c.Status(http.StatusOK)

	if err := h.backups.ExportTo(requestContext(c), c.Writer); err != nil {
		// Headers are already on the wire; log-and-abort is all that is left.
		_ = c.Error(fmt.Errorf("export: %w", err))
		c.Abort()
	}
}

// Import handles POST /api/backups/import, replacing the live store image
// with the raw request body.
func (h *BackupHandler) Import(c *gin.Context) {
	if h == nil || h.backups == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	if c.Request == nil || c.Request.Body == nil {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("request body is required"))
		return
	}

	if err := h.backups.ImportFrom(requestContext(c), c.Request.Body); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"imported": true})
}
