package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	dbcommon "github.com/ignatzorin/bounty-escrow/internal/repository/common"
)

var ErrEvidenceNotFound = errors.New("evidence not found")

// EvidenceFile это метаданные загруженного доказательства.
type EvidenceFile struct {
	Hash      string    `db:"hash" json:"hash"`
	Uploader  string    `db:"uploader" json:"uploader"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	SizeBytes int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type EvidenceRepository struct {
	db *sqlx.DB
}

func NewEvidenceRepository(db *sqlx.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// Create регистрирует файл. Повторная загрузка того же содержимого возвращает первую запись.
func (r *EvidenceRepository) Create(ctx context.Context, f *EvidenceFile) (*EvidenceFile, error) {
	var out EvidenceFile
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO evidence_files (hash, uploader, mime_type, size_bytes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING hash, uploader, mime_type, size_bytes, created_at
	`, f.Hash, f.Uploader, f.MimeType, f.SizeBytes)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *EvidenceRepository) GetByHash(ctx context.Context, hash string) (*EvidenceFile, error) {
	f, err := dbcommon.GetByField[EvidenceFile](ctx, r.db, "evidence_files", "hash", hash)
	if errors.Is(err, dbcommon.ErrNotFound) {
		return nil, ErrEvidenceNotFound
	}
	return f, err
}

func (r *EvidenceRepository) ListByUploader(ctx context.Context, uploader common.Address, limit, offset int) ([]EvidenceFile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var files []EvidenceFile
	err := r.db.SelectContext(ctx, &files, `
		SELECT hash, uploader, mime_type, size_bytes, created_at
		FROM evidence_files WHERE uploader = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, uploader.Hex(), limit, offset)
	return files, err
}
