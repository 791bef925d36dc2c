package student

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]Student
	order []string
}

// NewMemoryRepository keeps students in process memory. Used for local runs and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]Student)}
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (*Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	c := s.clone()
	return &c, nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (*Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if s := r.byID[id]; s.Email == email {
			c := s.clone()
			return &c, nil
		}
	}
	return nil, ErrStudentNotFound
}

func (r *memoryRepository) filter(keep func(Student) bool) []Student {
	r.mu.RLock()
	defer r.mu.RUnlock()

	students := make([]Student, 0, len(r.order))
	for _, id := range r.order {
		if s := r.byID[id]; keep(s) {
			students = append(students, s.clone())
		}
	}
	return students
}

func (r *memoryRepository) FindAll(_ context.Context) ([]Student, error) {
	return r.filter(func(Student) bool { return true }), nil
}

func (r *memoryRepository) FindByStatus(_ context.Context, status Status) ([]Student, error) {
	return r.filter(func(s Student) bool { return s.Status == status }), nil
}

func (r *memoryRepository) FindActiveWithExpiryAtOrBefore(_ context.Context, date time.Time) ([]Student, error) {
	cutoff := DateOf(date)
	students := r.filter(func(s Student) bool {
		return s.Status == StatusActive && !s.SubscriptionExpiry.After(cutoff)
	})
	sort.SliceStable(students, func(i, j int) bool {
		return students[i].SubscriptionExpiry.Before(students[j].SubscriptionExpiry)
	})
	return students, nil
}

func (r *memoryRepository) Save(_ context.Context, student *Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, other := range r.byID {
		if id != student.ID && other.Email == student.Email {
			return ErrEmailExists
		}
	}

	if student.Progress == nil {
		student.Progress = []ProgressEntry{}
	}
	if _, ok := r.byID[student.ID]; !ok {
		r.order = append(r.order, student.ID)
	}
	r.byID[student.ID] = student.clone()
	return nil
}

func (r *memoryRepository) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrStudentNotFound
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memoryRepository) ExistsByID(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byID[id]
	return ok, nil
}
