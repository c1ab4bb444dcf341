package core

import (
	"context"
	"io"

	"github.com/arlev/tether/internal/domain"
)

// External collaborators of the realtime layer. The CRUD backends behind
// these interfaces are out of scope; the layer only consumes them.

// HistoryFetcher returns the ordered message history for a conversation.
// Runs once per conversation switch.
type HistoryFetcher interface {
	DirectHistory(ctx context.Context, contact domain.UserID) ([]domain.Message, error)
	GroupHistory(ctx context.Context, group domain.GroupID) ([]domain.Message, error)
}

// UploadResult is the stored file reference plus the media type the upload
// endpoint detected.
type UploadResult struct {
	FileURL     string             `json:"fileUrl"`
	MessageType domain.MessageType `json:"messageType"`
}

// Uploader stores a file attachment before its message is emitted.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (UploadResult, error)
}

// ContactsService is the friend-graph backend consumed by the presence
// relay.
type ContactsService interface {
	AcceptFriendRequest(ctx context.Context, requestID string) error
	// RefreshContacts re-fetches friend and request lists after a
	// notification.
	RefreshContacts(ctx context.Context) error
}

// Notifier surfaces transient user-visible notices (toasts).
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}
