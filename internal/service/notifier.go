package service

import (
	"context"
	"io"
)

// Notifier is the chat side of the workflow.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	// EditProgress edits a progress message and keeps a cancel button on it.
	EditProgress(ctx context.Context, chatID int64, messageID int, text string) error
	SendDocument(ctx context.Context, chatID int64, name string, r io.Reader) error
	SendLink(ctx context.Context, chatID int64, text, label, link string) error
}
