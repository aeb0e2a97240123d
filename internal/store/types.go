package store

// Message delivery statuses. Transitions only go pending -> sent or
// pending -> failed; both are terminal.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ScheduledMessage is a text message queued for future delivery.
// Timestamps are Unix milliseconds.
type ScheduledMessage struct {
	ID           int64  `json:"id"`
	ContactJID   string `json:"contact_jid"`
	ContactName  string `json:"contact_name"`
	Body         string `json:"message"`
	ScheduledAt  int64  `json:"scheduled_at"`
	Status       string `json:"status"`
	SentAt       int64  `json:"sent_at,omitempty"` // zero unless status is sent
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// Contact is a cached WhatsApp contact known to the session.
type Contact struct {
	JID       string `json:"jid"`
	Name      string `json:"name"`
	PushName  string `json:"notify"`
	ImgURL    string `json:"img_url,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}
