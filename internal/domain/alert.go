package domain

// AlertArtifact is the fully composed message ready for dispatch: an embed
// plus the chart/gauge images it references, any interactive components,
// and the idempotency key that guards against double-send.
type AlertArtifact struct {
	Embed               Embed
	PrimaryAttachment   *Attachment // chart, required
	SecondaryAttachments []Attachment // e.g. sentiment gauge
	Components          []Component
	IdempotencyKey       string
}

// Embed mirrors the rich-message block accepted by the chat platform.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []EmbedField
	ImageURL    string // "attachment://<filename>" when an image is attached
	Footer      string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Attachment is a file to be sent alongside the embed. Path MUST be
// absolute by the time it reaches the dispatcher; a cache layer storing
// relative paths is required to resolve them before handing them over.
type Attachment struct {
	ID          int
	Filename    string
	Description string
	Path        string // absolute
}

// Component is an interactive control (button/select) attached to a message.
type Component struct {
	Kind     string // "button", "select", ...
	Label    string
	CustomID string
	Style    string
}
