// Package gchat wraps the Google Chat REST API behind domain.ChatAPI.
package gchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"chatbridge/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	chat "google.golang.org/api/chat/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Scope covers reading and writing messages in spaces the user belongs to.
const Scope = "https://www.googleapis.com/auth/chat.messages"

const listPageSize = 1000

// TokenUpdateFunc receives refreshed OAuth tokens so the caller can persist
// them back into the settings blob.
type TokenUpdateFunc func(*oauth2.Token) error

// notifyTokenSource wraps a token source and fires the callback whenever the
// access token rotates underneath it.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	logger   *slog.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.logger.Error("failed to persist refreshed token", "err", err)
		}
	}
	return t, nil
}

// OAuthConfig builds the oauth2 config used both by the client and by the
// interactive login flow.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{Scope},
		RedirectURL:  "http://localhost:54646",
	}
}

// Client implements domain.ChatAPI on top of the chat/v1 service.
type Client struct {
	svc    *chat.Service
	logger *slog.Logger
}

var _ domain.ChatAPI = (*Client)(nil)

// NewClient builds an authenticated Chat client from the token JSON stored
// in settings. Refreshed tokens flow back through onRefresh.
func NewClient(ctx context.Context, clientID, clientSecret, authJSON string, onRefresh TokenUpdateFunc, logger *slog.Logger) (*Client, error) {
	if authJSON == "" {
		return nil, fmt.Errorf("no stored Google credentials; run `chatbridge login` first")
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(authJSON), &tok); err != nil {
		return nil, fmt.Errorf("cannot parse stored token: %w", err)
	}

	cfg := OAuthConfig(clientID, clientSecret)
	wrapped := &notifyTokenSource{
		src:      cfg.TokenSource(ctx, &tok),
		current:  &tok,
		callback: onRefresh,
		logger:   logger,
	}

	svc, err := chat.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, wrapped)))
	if err != nil {
		return nil, fmt.Errorf("chat service: %w", err)
	}
	return &Client{svc: svc, logger: logger}, nil
}

// ListMessages fetches every message newer than the given timestamp,
// ascending by creation time, following continuation tokens until the feed
// is drained.
func (c *Client) ListMessages(ctx context.Context, space, after string) ([]domain.InboundMessage, error) {
	var out []domain.InboundMessage
	pageToken := ""
	for {
		call := c.svc.Spaces.Messages.List(space).
			PageSize(listPageSize).
			OrderBy("createTime ASC")
		if after != "" {
			call = call.Filter(fmt.Sprintf("create_time > %q", after))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range resp.Messages {
			out = append(out, convertMessage(m))
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

func convertMessage(m *chat.Message) domain.InboundMessage {
	msg := domain.InboundMessage{
		Name:       m.Name,
		CreateTime: m.CreateTime,
		Text:       m.FormattedText,
	}
	if msg.Text == "" {
		msg.Text = m.Text
	}
	if m.Sender != nil {
		msg.SenderID = m.Sender.Name
	}
	for _, a := range m.Attachment {
		if a.AttachmentDataRef == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.AttachmentRef{
			ContentName:  a.ContentName,
			ContentType:  a.ContentType,
			ResourceName: a.AttachmentDataRef.ResourceName,
		})
	}
	return msg
}

// CreateMessage posts a text message with optional pre-uploaded media into
// the space. The error comes back as a value so callers can drive their own
// retry loops.
func (c *Client) CreateMessage(ctx context.Context, space, text string, media []domain.UploadedMedia) (string, error) {
	msg := &chat.Message{Text: text}
	for _, m := range media {
		msg.Attachment = append(msg.Attachment, &chat.Attachment{
			ContentName: m.ContentName,
			AttachmentDataRef: &chat.AttachmentDataRef{
				ResourceName:          m.ResourceName,
				AttachmentUploadToken: m.UploadToken,
			},
		})
	}

	resp, err := c.svc.Spaces.Messages.Create(space, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	return resp.Name, nil
}

// UploadMedia stages a file in the space and returns the handle needed to
// attach it to a new message.
func (c *Client) UploadMedia(ctx context.Context, space, filename, contentType string, r io.Reader) (domain.UploadedMedia, error) {
	call := c.svc.Media.Upload(space, &chat.UploadAttachmentRequest{Filename: filename})
	call.Media(r, googleapi.ContentType(contentType))

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return domain.UploadedMedia{}, fmt.Errorf("upload media: %w", err)
	}
	if resp.AttachmentDataRef == nil {
		return domain.UploadedMedia{}, fmt.Errorf("upload media: response missing data ref")
	}
	return domain.UploadedMedia{
		ResourceName: resp.AttachmentDataRef.ResourceName,
		UploadToken:  resp.AttachmentDataRef.AttachmentUploadToken,
		ContentName:  filename,
	}, nil
}

// DownloadMedia opens a stream for a remote attachment. The caller closes it.
func (c *Client) DownloadMedia(ctx context.Context, resourceName string) (io.ReadCloser, error) {
	resp, err := c.svc.Media.Download(resourceName).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return resp.Body, nil
}
