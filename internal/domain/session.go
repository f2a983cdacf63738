package domain

import "time"

// Session pools partition devices by usage intent. The pool is a label
// only; the connection lifecycle is identical for every pool.
const (
	PoolCRM     = "crm"
	PoolBulk    = "bulk"
	PoolSupport = "support"
)

var Pools = []string{PoolCRM, PoolBulk, PoolSupport}

func ValidPool(pool string) bool {
	for _, p := range Pools {
		if p == pool {
			return true
		}
	}
	return false
}

// WaSession is the persistent record of one WhatsApp-linked device
// identity. The live connection (if any) is owned by the session registry;
// a row without a live connection is a cold session.
type WaSession struct {
	ID            string    `json:"id" gorm:"primaryKey;size:64"`
	DisplayName   string    `json:"display_name" form:"display_name"`
	Pool          string    `gorm:"index;size:32" json:"pool" form:"pool"`
	State         string    `gorm:"index;size:24" json:"state"`
	PhoneIdentity string    `json:"phone_identity"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName Specify table name
func (WaSession) TableName() string {
	return "wa_session"
}

// WaCredential stores the opaque protocol credential blob for a session
// when the database credential backend is selected. Never exposed through
// any API response.
type WaCredential struct {
	SessionID string    `json:"-" gorm:"primaryKey;size:64"`
	Blob      []byte    `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName Specify table name
func (WaCredential) TableName() string {
	return "wa_credential"
}

// WaMsgLog records one successful outbound send.
type WaMsgLog struct {
	ID        int64     `json:"id,string"`
	SessionID string    `gorm:"index;size:64" json:"session_id"`
	Target    string    `json:"target"`
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (WaMsgLog) TableName() string {
	return "wa_msg_log"
}
