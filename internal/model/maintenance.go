package model

import "time"

const (
	MaintenanceCleanup         = "cleanup"
	MaintenancePurgeDeadLetter = "purge_dead_letter"
	MaintenanceQuotaReconcile  = "quota_reconcile"
	MaintenanceFavoritesFix    = "favorites_fix"
)

// MaintenanceLog is an append-only record of a maintenance run. Details is JSON.
type MaintenanceLog struct {
	ID        string    `db:"id" json:"id"`
	Type      string    `db:"type" json:"type"`
	Details   string    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
