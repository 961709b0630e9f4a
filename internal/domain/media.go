package domain

import (
	"fmt"
	"io"
	"strings"

	"github.com/damoang/angple-chat/internal/common"
)

// MediaFile is an uploaded binary waiting to be stored
type MediaFile struct {
	Body        io.Reader
	Name        string
	ContentType string
	Size        int64
}

// MediaContentType maps a declared MIME type onto a message content kind
func MediaContentType(mime string) (ContentType, error) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return ContentImage, nil
	case strings.HasPrefix(mime, "video/"):
		return ContentVideo, nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnsupportedMedia, mime)
	}
}

// ValidatePayload enforces the content policy: media decides the kind and
// text may ride along as a caption; without media the text must be non-blank.
func (m *Message) ValidatePayload() error {
	if m.HasMedia() {
		if m.ContentType != ContentImage && m.ContentType != ContentVideo {
			return fmt.Errorf("%w: media message needs image or video kind", common.ErrInvalidInput)
		}
		if m.Content != nil && strings.TrimSpace(*m.Content) == "" {
			m.Content = nil
		}
		return nil
	}
	if !m.HasContent() {
		return common.ErrEmptyMessage
	}
	m.ContentType = ContentText
	m.MediaURL = nil
	return nil
}
