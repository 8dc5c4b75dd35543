package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/pkg/models"
)

// LogQuoteHistory inserts an audit record into quote_histories.
// Used to track important status changes and actions on a quote.
// Errors are ignored on purpose (best-effort logging).
func LogQuoteHistory(
	ctx context.Context,
	db *gorm.DB,
	quoteID, actorID uuid.UUID,
	action string,
	oldS, newS models.QuoteStatus,
	note string,
) {
	_ = db.WithContext(ctx).Create(&models.QuoteHistory{
		QuoteID:   quoteID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: oldS,
		NewStatus: newS,
		Note:      note,
		CreatedAt: time.Now(),
	}).Error
}
