package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerEvent is an append-only audit row. One is written on every finalize
// and on every distribution state transition, so reconciliation can replay
// exactly what happened to each cent.
type LedgerEvent struct {
	EventID    uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	CompanyID  uuid.UUID      `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	EventType  string         `gorm:"column:event_type;type:varchar(40);not null" json:"event_type"`
	SubjectID  uuid.UUID      `gorm:"column:subject_id;type:uuid;not null;index" json:"subject_id"`
	ActorEmail *string        `gorm:"column:actor_email" json:"actor_email"`
	EventData  datatypes.JSON `gorm:"column:event_data;type:jsonb" json:"event_data"`
	CreatedAt  time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (LedgerEvent) TableName() string {
	return "LedgerEvents"
}

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}

const (
	EventComputationFinalized = "COMPUTATION_FINALIZED"
	EventTenderFinalized      = "TENDER_FINALIZED"
	EventDistributionMoved    = "DISTRIBUTION_STATUS_CHANGED"
	EventBatchFunded          = "BATCH_FUNDED"
)
