package model

import "time"

// Hold is a server-side lease on one unit of a slot's capacity. It counts
// against capacity until ExpiresAt.
type Hold struct {
	ID        string    `json:"id" bson:"id"`
	SlotID    string    `json:"slot_id" bson:"slot_id"`
	Kind      SlotKind  `json:"kind" bson:"kind"`
	HolderID  string    `json:"holder_id" bson:"holder_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (h Hold) Active(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

func (h Hold) Remaining(now time.Time) time.Duration {
	return max(0, h.ExpiresAt.Sub(now))
}
