package storage

import "curatewatch/internal/model"

// Journal is a sink recording notifications after delivery, for operator
// audit. It never influences delivery decisions.
type Journal interface {
	PutNotificationBatch(records []model.NotificationRecord) error
}

// MultiJournal fans a batch out to several journals, returning the first
// error after attempting all of them.
type MultiJournal []Journal

// PutNotificationBatch writes the batch to every journal.
func (m MultiJournal) PutNotificationBatch(records []model.NotificationRecord) error {
	var firstErr error
	for _, journal := range m {
		if err := journal.PutNotificationBatch(records); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
