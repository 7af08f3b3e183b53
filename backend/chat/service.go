// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package chat holds the message operations shared by the REST handlers and
// the socket gateway.
package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/conversation"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

// Sent is the outcome of Service.Send.
type Sent struct {
	View models.MessageView
	// Duplicate is set when the send repeated an earlier client message id.
	// Nothing new was stored and no notification was created.
	Duplicate    bool
	Notification *models.Notification
}

// SenderName is the display name used in notifications.
func (s *Sent) SenderName() string {
	if s.View.Sender != nil && s.View.Sender.Name != "" {
		return s.View.Sender.Name
	}
	return "Someone"
}

type Service struct {
	store    storage.Store
	notifier storage.Notifier
	logger   *zap.Logger
}

type Option func(*Service)

// WithNotifier publishes every new message to n after it is stored.
func WithNotifier(n storage.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(store storage.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() storage.Store { return s.store }

// Send persists msg and records the receiver's notification. Once the message
// is stored, notification and publish failures are logged, not returned.
func (s *Service) Send(ctx context.Context, msg models.NewMessage) (*Sent, error) {
	res, err := s.store.Append(ctx, msg)
	if err != nil {
		return nil, internal("Failed to send message", err)
	}

	// The message is committed; a failed lookup only costs the user refs.
	view := models.MessageView{Message: res.Message}
	if views, err := s.Populate(ctx, []models.Message{res.Message}); err != nil {
		s.logger.Error("populate sent message",
			zap.String("message_id", res.Message.ID), zap.Error(err))
	} else {
		view = views[0]
	}
	sent := &Sent{View: view, Duplicate: res.Duplicate}
	if sent.Duplicate {
		return sent, nil
	}

	n, err := s.store.CreateNotification(ctx, models.Notification{
		UserID:    res.Message.ReceiverID,
		Type:      models.NotificationTypeMessage,
		Title:     "New Message",
		Message:   fmt.Sprintf("%s sent you a message", sent.SenderName()),
		RelatedID: res.Message.ID,
	})
	if err != nil {
		s.logger.Error("create notification",
			zap.String("message_id", res.Message.ID), zap.Error(err))
	} else {
		sent.Notification = n
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyMessage(ctx, res.Message); err != nil {
			s.logger.Warn("publish message notification",
				zap.String("message_id", res.Message.ID), zap.Error(err))
		}
	}
	return sent, nil
}

// Populate attaches sender and receiver refs to each message.
func (s *Service) Populate(ctx context.Context, messages []models.Message) ([]models.MessageView, error) {
	ids := make([]string, 0, 2*len(messages))
	for _, m := range messages {
		ids = append(ids, m.SenderID, m.ReceiverID)
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]models.MessageView, len(messages))
	for i, m := range messages {
		views[i] = models.MessageView{
			Message:  m,
			Sender:   users[m.SenderID].Ref(),
			Receiver: users[m.ReceiverID].Ref(),
		}
	}
	return views, nil
}

// Thread returns the conversation between userID and otherID oldest first,
// after marking everything addressed to userID as read.
func (s *Service) Thread(ctx context.Context, userID, otherID string) ([]models.MessageView, error) {
	key, err := conversation.DeriveKey(userID, otherID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.MarkConversationRead(ctx, key, userID); err != nil {
		return nil, internal("Failed to fetch messages", err)
	}
	messages, err := s.store.ListByConversation(ctx, key)
	if err != nil {
		return nil, internal("Failed to fetch messages", err)
	}
	views, err := s.Populate(ctx, messages)
	if err != nil {
		return nil, internal("Failed to fetch messages", err)
	}
	return views, nil
}

// Conversations lists userID's conversations with the other participant
// populated.
func (s *Service) Conversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	summaries, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, internal("Failed to fetch conversations", err)
	}
	ids := make([]string, len(summaries))
	for i, c := range summaries {
		ids[i] = c.OtherUserID
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, internal("Failed to fetch conversations", err)
	}
	for i := range summaries {
		summaries[i].OtherUser = users[summaries[i].OtherUserID].Ref()
	}
	return summaries, nil
}

// MarkRead marks one message read on behalf of readerID.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID string) (*models.Message, error) {
	msg, err := s.store.MarkOneRead(ctx, messageID, readerID)
	if err != nil {
		return nil, internal("Failed to mark message as read", err)
	}
	return msg, nil
}

func (s *Service) Delete(ctx context.Context, messageID, requesterID string) error {
	if err := s.store.Delete(ctx, messageID, requesterID); err != nil {
		return internal("Failed to delete message", err)
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, internal("Failed to fetch unread count", err)
	}
	return n, nil
}

// internal keeps taxonomy errors as they are and hides everything else
// behind msg.
func internal(msg string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Internal(msg, err)
}
