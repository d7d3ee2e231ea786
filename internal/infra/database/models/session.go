package models

import (
	"time"
)

// SessionRecord is one key of a session record. Namespace separates the
// records of independent sessions sharing a database.
type SessionRecord struct {
	Namespace string    `json:"namespace" gorm:"type:text;primaryKey"`
	Key       string    `json:"key" gorm:"type:text;primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	CDate     time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate     time.Time `json:"mdate" gorm:"autoUpdateTime"`
}
