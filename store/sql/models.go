package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// credentialRecord holds one persisted credential per store key.
type credentialRecord struct {
	bun.BaseModel `bun:"table:authretry_credentials,alias:arc"`

	ID        string    `bun:"id,pk"`
	StoreKey  string    `bun:"store_key,notnull,unique"`
	Token     string    `bun:"token,notnull"`
	Version   int       `bun:"version,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
