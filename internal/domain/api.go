package domain

import (
	"context"
	"io"
)

// ChatAPI is the Google Chat surface the bridge consumes.
type ChatAPI interface {
	// ListMessages fetches all messages with createTime after the given
	// timestamp, in ascending creation-time order, following pagination.
	ListMessages(ctx context.Context, space, after string) ([]InboundMessage, error)
	// CreateMessage posts a message into the space and returns its resource name.
	CreateMessage(ctx context.Context, space, text string, media []UploadedMedia) (string, error)
	// UploadMedia stages a file in the space for inline attachment.
	UploadMedia(ctx context.Context, space, filename, contentType string, r io.Reader) (UploadedMedia, error)
	// DownloadMedia opens a stream for a remote attachment.
	DownloadMedia(ctx context.Context, resourceName string) (io.ReadCloser, error)
}

// Forwarder delivers a composed message to the Discord side. A forwarder
// with no outbound target configured drops the message without error; that
// is a valid pre-initialization state.
type Forwarder interface {
	Forward(ctx context.Context, msg OutboundMessage) error
}
