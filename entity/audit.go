package entity

import "time"

type AuditKind string

const (
	AuditCodeRequested AuditKind = "code_requested"
	AuditCodeDelivered AuditKind = "code_delivered"
	AuditCodeRedeemed  AuditKind = "code_redeemed"
	AuditGrantCreated  AuditKind = "grant_created"
	AuditGrantExpired  AuditKind = "grant_expired"
	AuditPermanent     AuditKind = "permanent_verified"
	AuditRevoked       AuditKind = "revoked"
	AuditCleared       AuditKind = "cleared"
)

// AuditEvent is one state transition of the verification flow. Actor is
// empty for transitions triggered through the HTTP API.
type AuditEvent struct {
	ID        string    `json:"id" bson:"id"`
	Kind      AuditKind `json:"kind" bson:"kind"`
	Handle    string    `json:"handle,omitempty" bson:"handle,omitempty"`
	UserID    string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Actor     string    `json:"actor,omitempty" bson:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty" bson:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
