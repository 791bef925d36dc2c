package student

import "time"

type CreateStudentRequest struct {
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      string  `json:"phone"`
	StartDate  string  `json:"startDate" validate:"required,datetime=2006-01-02"`
	Level      string  `json:"level"`
	MonthlyFee float64 `json:"monthlyFee" validate:"required,gt=0"`
	PaymentDay int     `json:"paymentDay" validate:"required,min=1,max=31"`
	Notes      string  `json:"notes"`
}

func (r CreateStudentRequest) toDetails() (Details, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return Details{}, &ValidationError{Fields: map[string]string{"startDate": "must be a date in YYYY-MM-DD format"}}
	}
	return Details{
		Name:       r.Name,
		Email:      r.Email,
		Phone:      r.Phone,
		StartDate:  start,
		Level:      r.Level,
		MonthlyFee: r.MonthlyFee,
		PaymentDay: r.PaymentDay,
		Notes:      r.Notes,
	}, nil
}

type AddProgressRequest struct {
	Topic       string   `json:"topic" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Grade       *float64 `json:"grade" validate:"required,gte=0"`
	MaxGrade    *float64 `json:"maxGrade" validate:"required,gt=0"`
	Comments    string   `json:"comments"`
}

func (r AddProgressRequest) toInput() ProgressInput {
	in := ProgressInput{
		Topic:       r.Topic,
		Description: r.Description,
		Comments:    r.Comments,
	}
	if r.Grade != nil {
		in.Grade = *r.Grade
	}
	if r.MaxGrade != nil {
		in.MaxGrade = *r.MaxGrade
	}
	return in
}

type StudentDto struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Phone              string             `json:"phone,omitempty"`
	StartDate          string             `json:"startDate"`
	Level              string             `json:"level,omitempty"`
	Status             Status             `json:"status"`
	MonthlyFee         float64            `json:"monthlyFee"`
	PaymentDay         int                `json:"paymentDay"`
	SubscriptionExpiry string             `json:"subscriptionExpiry"`
	Progress           []ProgressEntryDto `json:"progress"`
	Notes              string             `json:"notes,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

type ProgressEntryDto struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Topic       string  `json:"topic"`
	Description string  `json:"description"`
	Grade       float64 `json:"grade"`
	MaxGrade    float64 `json:"maxGrade"`
	Comments    string  `json:"comments,omitempty"`
}

func ToDto(s *Student) StudentDto {
	progress := make([]ProgressEntryDto, 0, len(s.Progress))
	for _, p := range s.Progress {
		progress = append(progress, ProgressEntryDto{
			ID:          p.ID,
			Date:        p.Date.Format(DateLayout),
			Topic:       p.Topic,
			Description: p.Description,
			Grade:       p.Grade,
			MaxGrade:    p.MaxGrade,
			Comments:    p.Comments,
		})
	}

	return StudentDto{
		ID:                 s.ID,
		Name:               s.Name,
		Email:              s.Email,
		Phone:              s.Phone,
		StartDate:          s.StartDate.Format(DateLayout),
		Level:              s.Level,
		Status:             s.Status,
		MonthlyFee:         s.MonthlyFee,
		PaymentDay:         s.PaymentDay,
		SubscriptionExpiry: s.SubscriptionExpiry.Format(DateLayout),
		Progress:           progress,
		Notes:              s.Notes,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func toDtos(students []Student) []StudentDto {
	dtos := make([]StudentDto, 0, len(students))
	for i := range students {
		dtos = append(dtos, ToDto(&students[i]))
	}
	return dtos
}
