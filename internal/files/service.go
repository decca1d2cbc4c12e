package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.uber.org/zap"

	"multichat/internal/logging"
	"multichat/pkg/models"
)

// ErrNotFound means the file does not exist or belongs to another user.
var ErrNotFound = errors.New("files: file not found")

// ErrTooLarge means the upload exceeds the configured size limit.
var ErrTooLarge = errors.New("files: file exceeds size limit")

// Service manages attachment metadata and blobs.
type Service struct {
	db       *gorm.DB
	store    BlobStore
	maxBytes int64
}

// NewService creates a file service. maxBytes caps upload size.
func NewService(db *gorm.DB, store BlobStore, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Service{db: db, store: store, maxBytes: maxBytes}
}

// Upload stores the blob, extracts its text, and records the metadata.
func (s *Service) Upload(ctx context.Context, userID uint, name, contentType string, data io.Reader) (*models.StoredFile, error) {
	// Read one byte past the limit to detect oversize uploads.
	content, err := io.ReadAll(io.LimitReader(data, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("files: failed to read upload: %w", err)
	}
	if int64(len(content)) > s.maxBytes {
		return nil, ErrTooLarge
	}

	text, err := extractText(name, contentType, content)
	if err != nil {
		// Store the file anyway; it just carries no prompt context.
		logging.L().Warn("text extraction failed",
			zap.String("name", name),
			zap.String("content_type", contentType),
			zap.Error(err))
		text = ""
	}

	key := uuid.New().String() + filepath.Ext(name)
	if err := s.store.Put(ctx, key, bytes.NewReader(content)); err != nil {
		return nil, err
	}

	file := &models.StoredFile{
		UserID:        userID,
		Name:          name,
		ContentType:   contentType,
		SizeBytes:     int64(len(content)),
		StorageKey:    key,
		ExtractedText: text,
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, fmt.Errorf("files: failed to record upload: %w", err)
	}

	logging.L().Info("file uploaded",
		zap.Uint("user_id", userID),
		zap.String("name", name),
		zap.Int64("size", file.SizeBytes),
		zap.Bool("has_text", text != ""))
	return file, nil
}

// List returns the user's files, newest first.
func (s *Service) List(ctx context.Context, userID uint) ([]models.StoredFile, error) {
	var out []models.StoredFile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// Get returns one file owned by the user.
func (s *Service) Get(ctx context.Context, userID, fileID uint) (*models.StoredFile, error) {
	var file models.StoredFile
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", fileID, userID).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// Open returns the raw blob of one file owned by the user.
func (s *Service) Open(ctx context.Context, userID, fileID uint) (io.ReadCloser, *models.StoredFile, error) {
	file, err := s.Get(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, file.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, file, nil
}

// Delete removes a file's metadata and blob.
func (s *Service) Delete(ctx context.Context, userID, fileID uint) error {
	file, err := s.Get(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(file).Error; err != nil {
		return err
	}
	return s.store.Delete(ctx, file.StorageKey)
}

// BuildContext concatenates the extracted text of the given files into
// a prompt suffix, each blob introduced by a [File: name] delimiter.
// Files the user does not own are silently skipped. The returned string
// is appended to the outgoing turn only; the persisted message keeps
// its original undecorated content.
func (s *Service) BuildContext(ctx context.Context, userID uint, fileIDs []uint) (string, error) {
	if len(fileIDs) == 0 {
		return "", nil
	}

	var attached []models.StoredFile
	err := s.db.WithContext(ctx).
		Where("id IN ? AND user_id = ?", fileIDs, userID).
		Find(&attached).Error
	if err != nil {
		return "", err
	}

	var out string
	for _, f := range attached {
		if f.ExtractedText == "" {
			continue
		}
		out += fmt.Sprintf("\n\n[File: %s]\n%s\n", f.Name, f.ExtractedText)
	}
	return out, nil
}
