package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BlobStore is the attachment store.
type BlobStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, paths []string) error
}

// UploadInput 附件上传
type UploadInput struct {
	QuoteID     string
	Key         string // client-chosen handle used to cancel; generated when empty
	FileName    string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Attachment 已上传的附件
type Attachment struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// AttachmentService uploads chat and quote attachments. Each upload owns its
// own cancel handle; cancelling one leaves the others running and removes
// whatever part of the object reached the store.
type AttachmentService struct {
	blob   BlobStore
	logger *zap.Logger

	mu      sync.Mutex
	uploads map[string]context.CancelFunc
}

func NewAttachmentService(blob BlobStore, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{blob: blob, logger: logger, uploads: make(map[string]context.CancelFunc)}
}

func (s *AttachmentService) Upload(ctx context.Context, in UploadInput) (*Attachment, error) {
	if s.blob == nil {
		return nil, errors.New("上传附件失败: 未配置对象存储")
	}
	if in.QuoteID == "" || in.Body == nil {
		return nil, fmt.Errorf("%w: 缺少文件", entity.ErrValidation)
	}
	key := in.Key
	if key == "" {
		key = uuid.New().String()[:32]
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if _, busy := s.uploads[key]; busy {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: 上传 %s 正在进行", entity.ErrValidation, key)
	}
	s.uploads[key] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.uploads, key)
		s.mu.Unlock()
		cancel()
	}()

	name := sanitizeFileName(in.FileName)
	objectPath := fmt.Sprintf("quotes/%s/%s_%s", in.QuoteID, key, name)
	_, err := s.blob.Upload(ctx, objectPath, in.Body, in.Size, in.ContentType)
	if ctx.Err() != nil {
		// Cancelled mid-flight or right after the store acknowledged.
		s.compensate(ctx, objectPath)
		return nil, fmt.Errorf("上传 %s 已取消: %w", key, entity.ErrCancelled)
	}
	if err != nil {
		return nil, fmt.Errorf("上传附件失败: %w", err)
	}
	return &Attachment{Key: key, Name: name, Path: objectPath, Size: in.Size}, nil
}

// Cancel aborts the upload with the given key and reports whether one was running.
func (s *AttachmentService) Cancel(key string) bool {
	s.mu.Lock()
	cancel, ok := s.uploads[key]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight returns the number of running uploads.
func (s *AttachmentService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func (s *AttachmentService) compensate(ctx context.Context, objectPath string) {
	if err := s.blob.Remove(context.WithoutCancel(ctx), []string{objectPath}); err != nil {
		s.logger.Warn("remove partial upload failed", zap.String("path", objectPath), zap.Error(err))
	}
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return strings.ReplaceAll(name, " ", "_")
}
