package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Snapshot rows hold the whole entity as JSON, keyed by address. The core
// stays the source of truth; these rows are its recovery point.
type ledgerRow struct {
	Address   string         `gorm:"primaryKey;type:text"`
	Owner     string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;not null"`
}

func (ledgerRow) TableName() string { return "ledger_snapshots" }

type factoryRow struct {
	Address   string         `gorm:"primaryKey;type:text"`
	Ledger    string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;not null"`
}

func (factoryRow) TableName() string { return "factory_snapshots" }

type marketRow struct {
	Address   string         `gorm:"primaryKey;type:text"`
	Factory   string         `gorm:"type:text;index;not null"`
	Creator   string         `gorm:"type:text;index;not null"`
	State     string         `gorm:"type:text;index;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"type:timestamptz;index;not null"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;not null"`
}

func (marketRow) TableName() string { return "market_snapshots" }

type eventRow struct {
	ID        string         `gorm:"primaryKey;type:text"`
	Type      string         `gorm:"type:text;index;not null"`
	Entity    string         `gorm:"type:text;index:idx_events_entity_created,priority:1;not null"`
	Actor     string         `gorm:"type:text"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"type:timestamptz;index:idx_events_entity_created,priority:2;not null"`
}

func (eventRow) TableName() string { return "domain_events" }

type auditRow struct {
	ID           string         `gorm:"primaryKey;type:text"`
	Caller       string         `gorm:"type:text;index:idx_audit_caller_created,priority:1"`
	Method       string         `gorm:"type:text"`
	Path         string         `gorm:"type:text"`
	IP           string         `gorm:"type:text"`
	UserAgent    string         `gorm:"type:text"`
	RequestBody  string         `gorm:"type:text"`
	StatusCode   int            `gorm:"type:integer"`
	ResponseBody string         `gorm:"type:text"`
	LatencyMs    int64          `gorm:"type:bigint"`
	Context      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"type:timestamptz;index:idx_audit_caller_created,priority:2"`
}

func (auditRow) TableName() string { return "audit_logs" }

type idempotencyRow struct {
	Key          string    `gorm:"primaryKey;type:text"`
	StatusCode   int       `gorm:"type:integer;not null;default:0"`
	ResponseBody []byte    `gorm:"type:bytea"`
	Processing   bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"type:timestamptz;index;not null"`
}

func (idempotencyRow) TableName() string { return "idempotency_keys" }

type usageRow struct {
	Caller   string          `gorm:"primaryKey;type:text"`
	Day      string          `gorm:"primaryKey;type:text"`
	Deposits int             `gorm:"not null;default:0"`
	Volume   decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0"`
}

func (usageRow) TableName() string { return "deposit_daily_usage" }
