package student

import (
	"time"

	"github.com/uptrace/bun"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusGraduated Status = "GRADUATED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusInactive, StatusSuspended, StatusGraduated:
		return st, nil
	}
	return "", &ValidationError{Fields: map[string]string{"status": "must be one of ACTIVE, INACTIVE, SUSPENDED, GRADUATED"}}
}

var transitions = map[Status][]Status{
	StatusActive:    {StatusInactive, StatusSuspended, StatusGraduated},
	StatusInactive:  {StatusActive, StatusGraduated},
	StatusSuspended: {StatusActive, StatusInactive, StatusGraduated},
	StatusGraduated: nil,
}

// CanTransitionTo reports whether a student in status s may move to next.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Student struct {
	bun.BaseModel `bun:"table:students,alias:s" bson:"-" json:"-"`

	ID                 string          `bun:"id,pk" bson:"_id" json:"id"`
	Name               string          `bun:"name,notnull" bson:"name" json:"name"`
	Email              string          `bun:"email,notnull,unique" bson:"email" json:"email"`
	Phone              string          `bun:"phone" bson:"phone,omitempty" json:"phone,omitempty"`
	StartDate          time.Time       `bun:"start_date,type:date,notnull" bson:"start_date" json:"startDate"`
	Level              string          `bun:"level" bson:"level,omitempty" json:"level,omitempty"`
	Status             Status          `bun:"status,notnull" bson:"status" json:"status"`
	MonthlyFee         float64         `bun:"monthly_fee,notnull" bson:"monthly_fee" json:"monthlyFee"`
	PaymentDay         int             `bun:"payment_day,notnull" bson:"payment_day" json:"paymentDay"`
	SubscriptionExpiry time.Time       `bun:"subscription_expiry,type:date,notnull" bson:"subscription_expiry" json:"subscriptionExpiry"`
	Notes              string          `bun:"notes" bson:"notes,omitempty" json:"notes,omitempty"`
	Progress           []ProgressEntry `bun:"progress,type:jsonb" bson:"progress" json:"progress"`
	CreatedAt          time.Time       `bun:"created_at,notnull" bson:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `bun:"updated_at,notnull" bson:"updated_at" json:"updatedAt"`
}

type ProgressEntry struct {
	ID          string    `json:"id" bson:"id"`
	Date        time.Time `json:"date" bson:"date"`
	Topic       string    `json:"topic" bson:"topic"`
	Description string    `json:"description" bson:"description"`
	Grade       float64   `json:"grade" bson:"grade"`
	MaxGrade    float64   `json:"maxGrade" bson:"max_grade"`
	Comments    string    `json:"comments,omitempty" bson:"comments,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}

// Details are the editable attributes of a student, shared by register and update.
type Details struct {
	Name       string
	Email      string
	Phone      string
	StartDate  time.Time
	Level      string
	MonthlyFee float64
	PaymentDay int
	Notes      string
}

type ProgressInput struct {
	Topic       string
	Description string
	Grade       float64
	MaxGrade    float64
	Comments    string
}

func (s *Student) clone() Student {
	c := *s
	c.Progress = append([]ProgressEntry{}, s.Progress...)
	return c
}
