package storage

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAdmin     = "admin"
)

// Buffer states for user messages. Only user rows participate in
// debouncing; assistant and admin rows carry an empty state.
const (
	BufferPending = "pending"
	BufferFlushed = "flushed"
)

// Message is one stored conversation row.
type Message struct {
	ID          int64
	UserID      string
	ChatID      string
	Role        string
	Content     string
	BufferState string
	CreatedAt   time.Time
}

// Session is the per-conversation state: collected slots, checkout
// progress, and media bookkeeping.
type Session struct {
	UserID            string
	ChatID            string
	Slots             map[string]any
	CheckoutStep      string
	CheckoutData      map[string]any
	LastMediaType     string
	LastMediaAt       time.Time
	LastViewedProduct string
	UpdatedAt         time.Time
}

// HandoffState tracks whether an admin has paused the bot for a
// conversation. Keyed by chat: in a 1:1 chat the chat ID equals the
// customer's user ID, in a group it is the group ID, so the pause set
// by an admin event silences the customer's events in the same chat.
type HandoffState struct {
	ChatID      string
	Paused      bool
	PausedAt    time.Time
	LastAdminAt time.Time
}

// Order statuses.
const (
	OrderStatusPendingReview = "pending_staff_review"
	OrderStatusProcessing    = "processing"
	OrderStatusCompleted     = "completed"
	OrderStatusCancelled     = "cancelled"
)

// Order is a committed checkout.
type Order struct {
	ID             string
	UserID         string
	ChatID         string
	ProductCode    string
	ProductName    string
	Price          int
	PaymentMethod  string
	DeliveryMethod string
	DeliveryFee    int
	Deposit        int
	Address        string
	Status         string
	CreatedAt      time.Time
	Installments   []Installment
}

// Installment is one period of an order's payment schedule.
type Installment struct {
	Period int
	Amount int
	DueAt  time.Time
}

// KBEntry is a knowledge base answer with its matching rules.
// Legacy entries use Keywords (all must appear). Advanced entries use
// RequireAll/RequireAny/ExcludeAny with an optional minimum query length.
type KBEntry struct {
	ID          int64
	Answer      string
	Keywords    []string
	RequireAll  []string
	RequireAny  []string
	ExcludeAny  []string
	MinQueryLen int
	Advanced    bool
	Active      bool
}

// Product is a catalog item.
type Product struct {
	Code      string
	Name      string
	Price     int
	ImageURL  string
	InStock   bool
	UpdatedAt time.Time
}
