package models

import (
	"time"

	"github.com/google/uuid"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCleaner  Role = "cleaner"
	RoleAdmin    Role = "admin"
)

// QuoteStatus defines lifecycle states for a quote request.
type QuoteStatus string

const (
	QuotePending   QuoteStatus = "pending"
	QuoteQuoted    QuoteStatus = "quoted"
	QuoteAccepted  QuoteStatus = "accepted"
	QuotePaid      QuoteStatus = "paid"
	QuoteScheduled QuoteStatus = "scheduled"
	QuoteCompleted QuoteStatus = "completed"
	QuoteDeclined  QuoteStatus = "declined" // customer walked away
	QuoteRejected  QuoteStatus = "rejected" // admin turned it down
)

// quoteTransitions is the closed set of legal status moves. Anything not
// listed here is a 409 at the handler level.
var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuotePending:   {QuoteQuoted, QuoteRejected},
	QuoteQuoted:    {QuoteAccepted, QuoteDeclined, QuoteRejected},
	QuoteAccepted:  {QuotePaid, QuoteDeclined},
	QuotePaid:      {QuoteScheduled},
	QuoteScheduled: {QuoteCompleted},
}

// CanTransition reports whether a quote may move from one status to another.
func CanTransition(from, to QuoteStatus) bool {
	for _, next := range quoteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BookingStatus defines lifecycle states for a booking.
type BookingStatus string

const (
	BookingPendingSchedule BookingStatus = "pending_schedule"
	BookingScheduled       BookingStatus = "scheduled"
	BookingInProgress      BookingStatus = "in_progress"
	BookingCompleted       BookingStatus = "completed"
	BookingCancelled       BookingStatus = "cancelled"
)

// AssignmentStatus defines lifecycle states for a cleaner assignment.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentRejected  AssignmentStatus = "rejected"
)

// ActiveAssignmentStatuses are the states that block a new assignment on the
// same quote.
var ActiveAssignmentStatuses = []AssignmentStatus{
	AssignmentPending, AssignmentAccepted,
}

// PayoutStatus tracks whether a cleaner's cut has been paid out.
type PayoutStatus string

const (
	PayoutUnpaid PayoutStatus = "unpaid"
	PayoutPaid   PayoutStatus = "paid"
)

// CleanerStatus defines approval states for a contractor profile.
type CleanerStatus string

const (
	CleanerPending   CleanerStatus = "pending"
	CleanerApproved  CleanerStatus = "approved"
	CleanerSuspended CleanerStatus = "suspended"
)

// TxStatus defines outcomes recorded for a Stripe payment intent.
type TxStatus string

const (
	TxSucceeded TxStatus = "succeeded"
	TxFailed    TxStatus = "failed"
)

// Frequency is how often a recurring clean happens.
type Frequency string

const (
	FreqOneOff      Frequency = "one_off"
	FreqWeekly      Frequency = "weekly"
	FreqFortnightly Frequency = "fortnightly"
	FreqMonthly     Frequency = "monthly"
)

/* =============================== Entities =============================== */

// User represents a customer, cleaner, or admin. Session, magic-link, and
// reset tokens live on the row so logout/burn is a single column update.
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
	Role  Role      `gorm:"type:varchar(20);not null" json:"role"`

	// Admins only
	PasswordHash string `json:"-"`

	SessionToken     *string    `gorm:"index" json:"-"`
	SessionExpiresAt *time.Time `json:"-"`

	MagicLinkToken     *string    `gorm:"index" json:"-"`
	MagicLinkExpiresAt *time.Time `json:"-"`

	ResetToken     *string    `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Cleaner is the contractor profile owned 1:1 by a user with role cleaner.
type Cleaner struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Status        CleanerStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Available     bool          `gorm:"default:true" json:"available"`
	ServiceAreas  string        `json:"service_areas"` // JSON-encoded array of postcode areas
	Bio           string        `json:"bio"`
	AverageRating float64       `gorm:"default:0" json:"average_rating"`
	JobsCompleted int           `gorm:"default:0" json:"jobs_completed"`
	CreatedAt     time.Time     `json:"created_at"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"-"`
}

// CleanerAvailability is one weekly slot in a cleaner's working schedule.
type CleanerAvailability struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CleanerID uuid.UUID `gorm:"type:uuid;not null;index" json:"cleaner_id"`
	Weekday   int       `gorm:"not null" json:"weekday"` // 0 = Sunday
	StartTime string    `gorm:"not null" json:"start_time"`
	EndTime   string    `gorm:"not null" json:"end_time"`
}

// QuoteRequest is a customer's service inquiry, later priced and accepted.
// Contact fields are snapshotted from the public form so the quote survives
// profile edits.
type QuoteRequest struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`

	ContactName  string `gorm:"not null" json:"contact_name"`
	ContactEmail string `gorm:"not null" json:"contact_email"`
	ContactPhone string `json:"contact_phone"`

	Address      string    `gorm:"not null" json:"address"`
	Postcode     string    `gorm:"not null" json:"postcode"`
	PropertyType string    `gorm:"not null" json:"property_type"`
	Bedrooms     int       `json:"bedrooms"`
	Bathrooms    int       `json:"bathrooms"`
	ServiceType  string    `gorm:"not null" json:"service_type"`
	Frequency    Frequency `gorm:"type:varchar(20);default:'one_off'" json:"frequency"`

	PreferredDate   *time.Time  `json:"preferred_date"`
	Notes           string      `json:"notes"`
	TotalPriceCents int         `json:"total_price_cents"` // set by admin pricing
	Status          QuoteStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	// Relations
	Images             []QuoteImage             `json:"images,omitempty"`
	AdditionalServices []QuoteAdditionalService `json:"additional_services,omitempty"`
}

// QuoteImage is a photo uploaded with a quote (stored in Supabase).
type QuoteImage struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID      uuid.UUID `gorm:"type:uuid;not null;index" json:"quote_id"`
	Key          string    `gorm:"not null" json:"key"`
	Mime         string    `gorm:"not null" json:"mime"`
	Size         int       `gorm:"not null" json:"size"`
	OriginalName string    `json:"original_name"`
	CreatedAt    time.Time `json:"created_at"`

	Quote QuoteRequest `gorm:"foreignKey:QuoteID;references:ID" json:"-"`
}

// QuoteAdditionalService is an extra line item (oven, windows, carpet...)
// priced from the additional_service_pricing table at submission time.
type QuoteAdditionalService struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID    uuid.UUID `gorm:"type:uuid;not null;index" json:"quote_id"`
	ServiceKey string    `gorm:"not null" json:"service_key"`
	Label      string    `json:"label"`
	PriceCents int       `gorm:"not null" json:"price_cents"`
}

// Booking is the scheduled occurrence of a paid quote.
type Booking struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID       uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"quote_id"`
	ScheduledDate *time.Time    `json:"scheduled_date"`
	TimeWindow    string        `json:"time_window"` // e.g. "09:00-12:00"
	Status        BookingStatus `gorm:"type:varchar(20);default:'pending_schedule'" json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// CleanerAssignment links a cleaner to a job. Payout fields are the
// contractor's cut, distinct from the customer's Transaction.
type CleanerAssignment struct {
	ID                 uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID            uuid.UUID        `gorm:"type:uuid;not null;index" json:"quote_id"`
	CleanerID          uuid.UUID        `gorm:"type:uuid;not null;index" json:"cleaner_id"`
	Status             AssignmentStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	PaymentAmountCents int              `gorm:"not null" json:"payment_amount_cents"`
	PaymentStatus      PayoutStatus     `gorm:"type:varchar(20);default:'unpaid'" json:"payment_status"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Transaction records a Stripe payment intent outcome for a quote.
// Idempotency key is the payment intent id.
type Transaction struct {
	ID                    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID               uuid.UUID `gorm:"type:uuid;not null;index" json:"quote_id"`
	StripePaymentIntentID string    `gorm:"uniqueIndex;not null" json:"stripe_payment_intent_id"`
	AmountCents           int       `gorm:"not null" json:"amount_cents"` // stored in cents to avoid float issues
	Currency              string    `gorm:"type:varchar(10);default:'usd'" json:"currency"`
	Status                TxStatus  `gorm:"type:varchar(20);not null" json:"status"`
	CustomerEmail         string    `json:"customer_email"`
	CustomerName          string    `json:"customer_name"`
	CreatedAt             time.Time `json:"created_at"`
}

// ReviewToken is a single-use, expiring credential that unlocks one
// testimonial submission for a completed quote.
type ReviewToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID   uuid.UUID `gorm:"type:uuid;not null;index" json:"quote_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	Email     string    `gorm:"not null" json:"email"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Testimonial is a customer review shown on the marketing pages once approved.
type Testimonial struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID      *uuid.UUID `gorm:"type:uuid" json:"quote_id,omitempty"`
	CleanerID    *uuid.UUID `gorm:"type:uuid" json:"cleaner_id,omitempty"`
	CustomerName string     `gorm:"not null" json:"customer_name"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	Rating       int        `gorm:"not null" json:"rating"`
	Approved     bool       `gorm:"default:false" json:"approved"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CleanerReview feeds a cleaner's average rating; one per completed quote.
type CleanerReview struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CleanerID uuid.UUID `gorm:"type:uuid;not null;index" json:"cleaner_id"`
	QuoteID   uuid.UUID `gorm:"type:uuid;not null;index" json:"quote_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is a CMS row describing a cleaning service and its base pricing.
type Service struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Key               string    `gorm:"uniqueIndex;not null" json:"key"` // e.g. "end_of_lease"
	Name              string    `gorm:"not null" json:"name"`
	Description       string    `gorm:"type:text" json:"description"`
	BasePriceCents    int       `gorm:"not null" json:"base_price_cents"`
	PerBedroomCents   int       `gorm:"default:0" json:"per_bedroom_cents"`
	PerBathroomCents  int       `gorm:"default:0" json:"per_bathroom_cents"`
	Active            bool      `gorm:"default:true" json:"active"`
	DisplayOrder      int       `gorm:"default:0" json:"display_order"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AdditionalServicePricing prices the optional extras on the quote form.
type AdditionalServicePricing struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Key        string    `gorm:"uniqueIndex;not null" json:"key"` // e.g. "oven_clean"
	Label      string    `gorm:"not null" json:"label"`
	PriceCents int       `gorm:"not null" json:"price_cents"`
	Active     bool      `gorm:"default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SiteConfig is a simple key/value store for marketing-page content.
type SiteConfig struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuoteHistory is an audit log entry for important quote changes.
type QuoteHistory struct {
	ID        uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	QuoteID   uuid.UUID   `gorm:"type:uuid;not null;index"`
	ActorID   uuid.UUID   `gorm:"type:uuid;not null;index"`  // who performed the action (customer/cleaner/admin/system)
	Action    string      `gorm:"type:varchar(50);not null"` // e.g. created, priced, accepted, paid, scheduled, assigned, completed
	OldStatus QuoteStatus `gorm:"type:varchar(20)"`
	NewStatus QuoteStatus `gorm:"type:varchar(20)"`
	Note      string      `gorm:"type:text"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
}

// AllModels is the migration set used by main and the test helpers.
func AllModels() []any {
	return []any{
		&User{}, &Cleaner{}, &CleanerAvailability{},
		&QuoteRequest{}, &QuoteImage{}, &QuoteAdditionalService{},
		&Booking{}, &CleanerAssignment{}, &Transaction{},
		&ReviewToken{}, &Testimonial{}, &CleanerReview{},
		&Service{}, &AdditionalServicePricing{}, &SiteConfig{},
		&QuoteHistory{},
	}
}
