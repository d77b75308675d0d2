package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationPreferences travel with a subscription edge.
type NotificationPreferences struct {
	Email          bool `gorm:"column:email" json:"email_notifications"`
	UrgentRequests bool `gorm:"column:urgent_requests" json:"urgent_requests"`
	MonthlyUpdates bool `gorm:"column:monthly_updates" json:"monthly_updates"`
}

// DefaultNotificationPreferences is what a new edge starts with.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{Email: true, UrgentRequests: true}
}

// Relationship is a directed "follows" edge. The subject follows the object;
// both roles are stored so callers never have to re-derive them.
// At most one row exists per (subject, object); it is reactivated, never deleted.
type Relationship struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SubjectID     uuid.UUID               `gorm:"column:subject_id;type:uuid;not null;uniqueIndex:idx_relationship_pair" json:"subject_id"`
	SubjectRole   Role                    `gorm:"column:subject_role;type:varchar(20);not null" json:"subject_role"`
	ObjectID      uuid.UUID               `gorm:"column:object_id;type:uuid;not null;uniqueIndex:idx_relationship_pair;index" json:"object_id"`
	ObjectRole    Role                    `gorm:"column:object_role;type:varchar(20);not null" json:"object_role"`
	Status        RelationshipStatus      `gorm:"column:status;type:varchar(10);not null;index" json:"status"`
	SubscribedAt  time.Time               `gorm:"column:subscribed_at;not null" json:"subscribed_at"`
	Notifications NotificationPreferences `gorm:"embedded;embeddedPrefix:notify_" json:"notification_preferences"`
	CreatedAt     time.Time               `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"column:updated_at" json:"updated_at"`
}

func (Relationship) TableName() string {
	return "relationships"
}

func (r *Relationship) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r Relationship) Active() bool {
	return r.Status == StatusActive
}
