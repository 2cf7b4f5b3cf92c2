package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-escrow/internal/repository"
	"github.com/ignatzorin/bounty-escrow/internal/storage"
)

// EvidenceStore хранит содержимое доказательств.
type EvidenceStore interface {
	Save(ctx context.Context, r io.Reader) (*storage.Evidence, error)
	Open(ctx context.Context, hash string) (io.ReadCloser, error)
	MaxUploadBytes() int64
}

// EvidenceIndex хранит метаданные доказательств.
type EvidenceIndex interface {
	Create(ctx context.Context, f *repository.EvidenceFile) (*repository.EvidenceFile, error)
	GetByHash(ctx context.Context, hash string) (*repository.EvidenceFile, error)
	ListByUploader(ctx context.Context, uploader common.Address, limit, offset int) ([]repository.EvidenceFile, error)
}

// EvidenceHandler принимает файлы, на которые ссылаются evidence_hash и work_hash.
type EvidenceHandler struct {
	store EvidenceStore
	index EvidenceIndex
}

func NewEvidenceHandler(store EvidenceStore, index EvidenceIndex) *EvidenceHandler {
	return &EvidenceHandler{store: store, index: index}
}

// Upload POST /evidence (multipart, поле file)
func (h *EvidenceHandler) Upload(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.store.MaxUploadBytes()+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		fail(c, apperror.Reject(apperror.KindInvalidInput, "файл не передан").With("field", "file"))
		return
	}
	file, err := header.Open()
	if err != nil {
		fail(c, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось прочитать файл"))
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	saved, err := h.store.Save(ctx, file)
	if err != nil {
		fail(c, storageError(err))
		return
	}

	record, err := h.index.Create(ctx, &repository.EvidenceFile{
		Hash:      saved.Hash,
		Uploader:  caller.Hex(),
		MimeType:  saved.MIME,
		SizeBytes: saved.Size,
	})
	if err != nil {
		fail(c, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить метаданные"))
		return
	}

	c.JSON(http.StatusCreated, record)
}

// Download GET /evidence/:hash
func (h *EvidenceHandler) Download(c *gin.Context) {
	hash := strings.ToLower(c.Param("hash"))
	ctx := c.Request.Context()

	record, err := h.index.GetByHash(ctx, hash)
	if errors.Is(err, repository.ErrEvidenceNotFound) {
		fail(c, apperror.Reject(apperror.KindNotFound, "доказательство не найдено").With("hash", hash))
		return
	}
	if err != nil {
		fail(c, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось прочитать метаданные"))
		return
	}

	content, err := h.store.Open(ctx, hash)
	if err != nil {
		fail(c, storageError(err))
		return
	}
	defer content.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.DataFromReader(http.StatusOK, record.SizeBytes, record.MimeType, content, nil)
}

// ListMine GET /evidence
func (h *EvidenceHandler) ListMine(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	files, err := h.index.ListByUploader(c.Request.Context(), caller, limit, offset)
	if err != nil {
		fail(c, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось прочитать список"))
		return
	}
	c.JSON(http.StatusOK, dto.NewList(files))
}

func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrEmptyFile),
		errors.Is(err, storage.ErrFileTooLarge),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, storage.ErrInvalidHash):
		return apperror.Reject(apperror.KindInvalidInput, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return apperror.Reject(apperror.KindNotFound, err.Error())
	default:
		return apperror.Wrap(err, apperror.ErrCodeInternal, "ошибка хранилища")
	}
}
