package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account in the MultiChat platform
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Basic user information
	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`

	// Account status
	IsActive bool `json:"is_active" gorm:"default:true"`
	IsAdmin  bool `json:"is_admin" gorm:"default:false"`

	// Prepaid balance in USD. Every metered model call settles against it.
	Balance float64 `json:"balance" gorm:"default:0"`

	// Relationships
	Conversations []Conversation `json:"-" gorm:"foreignKey:UserID"`
	Transactions  []Transaction  `json:"-" gorm:"foreignKey:UserID"`
	UsageLogs     []UsageLog     `json:"-" gorm:"foreignKey:UserID"`
}

// CanSpend returns true if the user's balance covers the given charge.
func (u *User) CanSpend(amount float64) bool {
	return u.Balance >= amount
}

// Conversation is a single chat thread pinned to one model
type Conversation struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	UserID uint   `json:"user_id" gorm:"not null;index"`
	User   User   `json:"-" gorm:"foreignKey:UserID"`
	Title  string `json:"title"`
	Model  string `json:"model" gorm:"not null"` // catalog model ID, e.g. gpt-5.2

	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID"`
}

// Message is one turn in a conversation. Role is user or assistant.
type Message struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	ConversationID uint   `json:"conversation_id" gorm:"not null;index"`
	Role           string `json:"role" gorm:"not null"` // user, assistant
	Content        string `json:"content" gorm:"type:text;not null"`

	// Token usage and cost, populated on assistant turns
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
}

// UsageLog records a single metered model invocation
type UsageLog struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	UserID       uint    `json:"user_id" gorm:"not null;index"`
	Model        string  `json:"model" gorm:"not null"`
	Kind         string  `json:"kind" gorm:"not null;index"` // chat, arena, arbitration
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`

	// Unmetered marks calls whose provider omitted usage counts; the
	// cost is 0 but not because the call was free.
	Unmetered bool `json:"unmetered" gorm:"default:false"`
}

// Usage kinds
const (
	UsageChat        = "chat"
	UsageArena       = "arena"
	UsageArbitration = "arbitration"
)

// Transaction records every balance movement, with the balance snapshot
// after the movement applied. Spending amounts are negative.
type Transaction struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	UserID       uint    `json:"user_id" gorm:"not null;index"`
	Amount       float64 `json:"amount" gorm:"not null"`
	Type         string  `json:"type" gorm:"not null;index"` // deposit, spending, admin_adjustment
	Description  string  `json:"description"`
	BalanceAfter float64 `json:"balance_after"`
}

// Transaction types
const (
	TxDeposit         = "deposit"
	TxSpending        = "spending"
	TxAdminAdjustment = "admin_adjustment"
)

// StoredFile is an uploaded attachment whose extracted text can be fed
// into model prompts.
type StoredFile struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	UserID      uint   `json:"user_id" gorm:"not null;index"`
	Name        string `json:"name" gorm:"not null"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StorageKey  string `json:"-" gorm:"not null"` // path on disk or S3 object key

	// Text extracted at upload time so prompts never re-parse the blob
	ExtractedText string `json:"-" gorm:"type:text"`
}
