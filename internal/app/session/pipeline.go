package session

import (
	"context"
	"log/slog"

	"marketchat/internal/domain/chat"
)

// Pipeline orchestrates outbound sends: optimistic insert, attachment upload,
// persistence and reconciliation. Failures after the optimistic insert always
// roll the entry back; a message is never left stranded in pending state.
type Pipeline struct {
	Messages      *MessageStore
	Conversations *ConversationStore
	Uploader      Uploader
	Persistence   Persistence
	Channel       EventChannel
	Logger        *slog.Logger
}

// Send delivers a draft to the counterpart of conv.
//
// The optimistic insert happens synchronously before any network I/O so the
// UI reflects the attempt with zero latency. Multiple sends may be in flight
// concurrently; each carries its own temporary id, so reconciliation and
// rollback never cross-contaminate.
func (p *Pipeline) Send(ctx context.Context, conv chat.Conversation, draft chat.Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	optimistic := p.Messages.InsertOptimistic(conv, draft)

	var attachmentURLs []string
	if len(draft.Images) > 0 {
		urls, err := p.Uploader.UploadImages(ctx, draft.Images)
		if err != nil {
			// No text-only fallback: the user asked for images.
			p.Messages.Rollback(optimistic.LocalID)
			return &chat.UploadError{Err: err}
		}
		attachmentURLs = urls
	}

	server, err := p.Persistence.CreateMessage(ctx, CreateMessageRequest{
		SenderID:        optimistic.SenderID,
		RecipientID:     optimistic.RecipientID,
		Body:            draft.Body,
		AttachmentURLs:  attachmentURLs,
		ConversationKey: conv.Key,
		RelatedItemID:   conv.RelatedItemID,
	})
	if err != nil {
		p.Messages.Rollback(optimistic.LocalID)
		return &chat.PersistenceError{Op: "create message", Err: err}
	}

	p.Messages.Reconcile(optimistic.LocalID, server)
	p.Conversations.RefreshPreview(server)

	// Best effort: persistence is the source of truth, a publish failure
	// never rolls the message back.
	if p.Channel != nil {
		if err := p.Channel.PublishMessageSent(ctx, server); err != nil {
			p.log().Warn("message event publish failed", "message_id", server.ID, "error", err)
		}
	}
	return nil
}

// Delete removes a message permanently and propagates the removal to the peer.
func (p *Pipeline) Delete(ctx context.Context, conversationKey, messageID string) error {
	if err := p.Persistence.DeleteMessage(ctx, messageID); err != nil {
		return &chat.PersistenceError{Op: "delete message", Err: err}
	}
	p.Messages.Remove(messageID)
	if p.Channel != nil {
		if err := p.Channel.PublishMessageDeleted(ctx, conversationKey, messageID); err != nil {
			p.log().Warn("delete event publish failed", "message_id", messageID, "error", err)
		}
	}
	return nil
}

func (p *Pipeline) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
