package domain

// InboundMessage is one Google Chat message fetched by the poller.
// It lives for a single poll iteration.
type InboundMessage struct {
	Name        string // resource name, e.g. spaces/X/messages/Y
	SenderID    string // e.g. users/100576874085867438126
	CreateTime  string // RFC3339; the watermark unit
	Text        string
	Attachments []AttachmentRef
}

// AttachmentRef points at a remote Google Chat attachment before it is
// staged to local disk.
type AttachmentRef struct {
	ContentName  string
	ContentType  string
	ResourceName string
}

// OutboundMessage is a composed message headed for the Discord webhook.
type OutboundMessage struct {
	Text        string
	Files       []string // local paths staged by the poller
	DisplayName string
	AvatarURL   string
}

// UploadedMedia is the handle returned by a Google Chat media upload,
// attachable to a newly created message.
type UploadedMedia struct {
	ResourceName string
	UploadToken  string
	ContentName  string
}
