package student

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type sampleStudent struct {
	details  Details
	progress ProgressInput
}

func sampleDate(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}

var sampleStudents = []sampleStudent{
	{
		details: Details{
			Name: "John Doe", Email: "john.doe@example.com", Phone: "+1234567890",
			StartDate: sampleDate("2024-01-15"), Level: "Intermediate",
			MonthlyFee: 150, PaymentDay: 15,
			Notes: "Student shows strong analytical skills",
		},
		progress: ProgressInput{
			Topic: "Calculus Fundamentals", Description: "Introduction to derivatives and limits",
			Grade: 85, MaxGrade: 100, Comments: "Good understanding of basic concepts",
		},
	},
	{
		details: Details{
			Name: "Jane Smith", Email: "jane.smith@example.com", Phone: "+1234567891",
			StartDate: sampleDate("2024-02-01"), Level: "Beginner",
			MonthlyFee: 120, PaymentDay: 1,
			Notes: "Student has a natural talent for literary analysis",
		},
		progress: ProgressInput{
			Topic: "Shakespeare Analysis", Description: "Understanding Hamlet's soliloquy",
			Grade: 92, MaxGrade: 100, Comments: "Excellent interpretation and analysis",
		},
	},
	{
		details: Details{
			Name: "Mike Johnson", Email: "mike.johnson@example.com", Phone: "+1234567892",
			StartDate: sampleDate("2024-01-01"), Level: "Advanced",
			MonthlyFee: 180, PaymentDay: 5,
			Notes: "Student demonstrates excellent problem-solving skills",
		},
		progress: ProgressInput{
			Topic: "Quantum Mechanics", Description: "Wave-particle duality and uncertainty principle",
			Grade: 88, MaxGrade: 100, Comments: "Good grasp of complex concepts",
		},
	},
}

// SeedSampleData registers the demo students through svc. Students whose
// email is already taken are left alone, so seeding twice is harmless.
// It returns how many students were created.
func SeedSampleData(ctx context.Context, svc Service) (int, error) {
	created := 0
	for _, sample := range sampleStudents {
		s, err := svc.Register(ctx, sample.details)
		if errors.Is(err, ErrEmailExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", sample.details.Email, err)
		}
		if _, err := svc.AddProgressEntry(ctx, s.ID, sample.progress); err != nil {
			return created, fmt.Errorf("seed progress for %s: %w", sample.details.Email, err)
		}
		created++
	}
	return created, nil
}
