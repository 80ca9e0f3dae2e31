package audit

import (
	"encoding/json"

	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Append writes one ledger event inside the caller's transaction. The ledger
// is append-only; nothing in the engine updates or deletes these rows.
func Append(tx *gorm.DB, companyID uuid.UUID, eventType string, subjectID uuid.UUID, actorEmail string, payload map[string]interface{}) error {
	event := domain.LedgerEvent{
		CompanyID: companyID,
		EventType: eventType,
		SubjectID: subjectID,
	}
	if actorEmail != "" {
		event.ActorEmail = &actorEmail
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		event.EventData = datatypes.JSON(b)
	}
	return tx.Create(&event).Error
}
