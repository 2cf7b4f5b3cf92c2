package storage

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"golang.org/x/crypto/sha3"
)

var (
	ErrEmptyFile       = errors.New("storage: файл пуст")
	ErrFileTooLarge    = errors.New("storage: размер файла превышает лимит")
	ErrUnsupportedType = errors.New("storage: неподдерживаемый тип файла")
	ErrInvalidHash     = errors.New("storage: некорректный хеш")
	ErrNotFound        = errors.New("storage: файл не найден")
)

const sniffLen = 512

// Разрешённые типы доказательств, определяемые по магическим байтам.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":       true,
	"image/png":        true,
	"image/gif":        true,
	"image/webp":       true,
	"application/pdf":  true,
	"application/zip":  true,
	"application/gzip": true,
	"video/mp4":        true,
}

// textMime присваивается файлам без сигнатуры, если начало файла валидный UTF-8.
const textMime = "text/plain"

// Evidence это сохранённый файл, адресуемый keccak256 содержимого.
type Evidence struct {
	Hash string `json:"hash"`
	MIME string `json:"mime_type"`
	Size int64  `json:"size_bytes"`
}

// EvidenceStorage хранит доказательства на диске: root/<две первые hex-цифры>/<hash>.
type EvidenceStorage struct {
	rootPath       string
	maxUploadBytes int64
}

// NewEvidenceStorage создаёт файловое хранилище.
func NewEvidenceStorage(rootPath string, maxUploadMB int64) (*EvidenceStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &EvidenceStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

// MaxUploadBytes возвращает лимит размера загрузки.
func (s *EvidenceStorage) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Save проверяет тип, считает хеш и сохраняет файл. Повторная загрузка того же содержимого
// возвращает тот же хеш и не создаёт копию.
func (s *EvidenceStorage) Save(ctx context.Context, r io.Reader) (*Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("storage: не удалось прочитать файл: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyFile
	}

	mime, err := detectMime(head)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.rootPath, "upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	tempPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
	}()

	h := sha3.NewLegacyKeccak256()
	limited := &io.LimitedReader{R: br, N: s.maxUploadBytes + 1}
	written, err := io.Copy(io.MultiWriter(tmp, h), limited)
	if err != nil {
		return nil, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}
	if written > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d байт", ErrFileTooLarge, s.maxUploadBytes)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	target := s.pathFor(digest)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог: %w", err)
	}
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(tempPath, target); err != nil {
			return nil, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
		}
	}

	return &Evidence{Hash: "0x" + digest, MIME: mime, Size: written}, nil
}

// Open открывает файл по хешу вида 0x<64 hex>.
func (s *EvidenceStorage) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := normalizeHash(hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.pathFor(digest))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: не удалось открыть файл: %w", err)
	}
	return f, nil
}

// Delete удаляет файл. Отсутствующий файл не считается ошибкой.
func (s *EvidenceStorage) Delete(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	digest, err := normalizeHash(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(s.pathFor(digest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

func (s *EvidenceStorage) pathFor(digest string) string {
	return filepath.Join(s.rootPath, digest[:2], digest)
}

func detectMime(head []byte) (string, error) {
	kind, err := filetype.Match(head)
	if err == nil && kind != filetype.Unknown {
		if !allowedMimeTypes[kind.MIME.Value] {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedType, kind.MIME.Value)
		}
		return kind.MIME.Value, nil
	}
	if isText(head) {
		return textMime, nil
	}
	return "", ErrUnsupportedType
}

// isText допускает обрезанную на границе буфера последнюю руну.
func isText(head []byte) bool {
	for i := 0; i < utf8.UTFMax && len(head) > 0; i++ {
		if utf8.Valid(head) {
			return !strings.ContainsRune(string(head), 0)
		}
		head = head[:len(head)-1]
	}
	return false
}

func normalizeHash(hash string) (string, error) {
	digest := strings.ToLower(strings.TrimPrefix(hash, "0x"))
	if len(digest) != 64 {
		return "", ErrInvalidHash
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", ErrInvalidHash
	}
	return digest, nil
}
