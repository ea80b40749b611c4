package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/target/institute-web/internal/errors"
	"github.com/target/institute-web/internal/ports"
)

// uploadTypes maps accepted content types to the extension stored in the object key.
var uploadTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// uploadFolders are the key prefixes admins may upload into.
var uploadFolders = map[string]bool{"gallery": true, "covers": true, "archive": true}

// UploadInput describes one admin upload.
type UploadInput struct {
	Folder      string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadService stores admin uploads in blob storage under random keys.
type UploadService struct {
	blobs  ports.BlobStore
	logger *slog.Logger
}

// NewUploadService constructs an UploadService.
func NewUploadService(blobs ports.BlobStore, logger *slog.Logger) *UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{blobs: blobs, logger: logger.With("component", "upload_service")}
}

// Upload validates the input and returns the object's public URL.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (string, error) {
	if s.blobs == nil {
		return "", errors.New("blob storage is not configured")
	}
	folder := strings.TrimSpace(in.Folder)
	if !uploadFolders[folder] {
		return "", apperrors.ValidationField("folder", "folder must be one of: gallery, covers, archive.")
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(in.ContentType, ";", 2)[0]))
	ext, ok := uploadTypes[ct]
	if !ok {
		return "", apperrors.ValidationField("file", fmt.Sprintf("unsupported content type %q.", ct))
	}
	if in.Body == nil || in.Size == 0 {
		return "", apperrors.ValidationField("file", "file is required.")
	}

	key := path.Join(folder, uuid.NewString()+ext)
	url, err := s.blobs.Upload(ctx, ports.BlobObject{Key: key, ContentType: ct, Size: in.Size, Body: in.Body})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "upload stored", "key", key, "bytes", in.Size)
	return url, nil
}
