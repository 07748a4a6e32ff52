package notify

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"curatewatch/internal/model"
)

const maxRetryAfterWait = 30 * time.Second

// Notifier formats occurrences and delivers them to a Telegram chat. When the
// channel reports a chat migration the destination is updated in place and
// the send repeated, so callers see one delivery and later sends go to the
// new identifier.
type Notifier struct {
	client *Client
	chatID string
	links  LinkSet
	logger *zap.Logger
}

// NewNotifier builds a notifier for the given destination chat.
func NewNotifier(client *Client, chatID string, links LinkSet, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		client: client,
		chatID: chatID,
		links:  links,
		logger: logger,
	}
}

// ChatID returns the current destination, reflecting any migration.
func (n *Notifier) ChatID() string {
	return n.chatID
}

// Notify renders and delivers one occurrence, returning the journal record
// for the sent message.
func (n *Notifier) Notify(ctx context.Context, occ model.Occurrence, market model.ResolvedMarket) (model.NotificationRecord, error) {
	text := FormatMessage(occ, market, n.links)
	if err := n.deliver(ctx, text); err != nil {
		return model.NotificationRecord{}, err
	}

	record := model.NotificationRecord{
		Key:         occ.Key,
		Kind:        string(occ.Kind),
		BlockNumber: occ.BlockNumber,
		TxHash:      occ.TxHash.Hex(),
		ChatID:      n.chatID,
		SentAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if occ.HasItemID {
		record.ItemID = occ.ItemID.Hex()
	}
	if market.MarketAddress != nil {
		record.MarketAddress = market.MarketAddress.Hex()
	}
	record.MarketName = market.MarketName
	return record, nil
}

func (n *Notifier) deliver(ctx context.Context, text string) error {
	rateLimited := false
	for {
		err := n.client.SendMessage(ctx, n.chatID, text)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}

		if apiErr.MigrateToChatID != 0 {
			next := strconv.FormatInt(apiErr.MigrateToChatID, 10)
			if next != n.chatID {
				n.logger.Warn("chat migrated, update the configured chat id",
					zap.String("old_chat_id", n.chatID),
					zap.String("new_chat_id", next))
				n.chatID = next
				continue
			}
		}

		if apiErr.RetryAfter > 0 && !rateLimited {
			wait := time.Duration(apiErr.RetryAfter) * time.Second
			if wait > maxRetryAfterWait {
				wait = maxRetryAfterWait
			}
			n.logger.Warn("rate limited by telegram", zap.Duration("wait", wait))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			rateLimited = true
			continue
		}

		return err
	}
}
