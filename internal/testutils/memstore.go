package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"academix-api/internal/errdefs"
	"academix-api/internal/models"
	"academix-api/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-memory stand-in for store.Store with the same
// conditional-update semantics.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	courses  map[primitive.ObjectID]*models.Course
	payments map[string]*models.Payment

	// Fail, when set, is returned by every call
	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    map[string]*models.User{},
		courses:  map[primitive.ObjectID]*models.Course{},
		payments: map[string]*models.Payment{},
	}
}

func (s *MemoryStore) InsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if _, ok := s.users[user.Email]; ok {
		return fmt.Errorf("user %s: %w", user.Email, errdefs.ErrAlreadyExists)
	}
	user.ID = primitive.NewObjectID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	cp := *user
	s.users[user.Email] = &cp
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	u, ok := s.users[email]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, errdefs.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	users := []models.User{}
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (s *MemoryStore) UpsertUserProfile(_ context.Context, email string, fields map[string]interface{}) (*store.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}

	res := &store.WriteResult{}
	u, ok := s.users[email]
	if ok {
		res.Matched, res.Modified = 1, 1
	} else {
		u = &models.User{ID: primitive.NewObjectID(), Email: email, CreatedAt: time.Now().UTC()}
		s.users[email] = u
		res.Upserted, res.UpsertedID = 1, u.ID.Hex()
	}
	for k, v := range fields {
		str, _ := v.(string)
		switch k {
		case "name":
			u.Name = str
		case "phone":
			u.Phone = str
		case "photoURL":
			u.PhotoURL = str
		case "address":
			u.Address = str
		}
	}
	u.UpdatedAt = time.Now().UTC()
	return res, nil
}

func (s *MemoryStore) parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("course id %q: %w", id, errdefs.ErrInvalidArgument)
	}
	return oid, nil
}

// AddCourse seeds a course and returns its hex id
func (s *MemoryStore) AddCourse(course models.Course) string {
	_ = s.CreateCourse(context.Background(), &course)
	return course.ID.Hex()
}

func (s *MemoryStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	return s.filterCourses(func(*models.Course) bool { return true })
}

func (s *MemoryStore) ListCoursesByOwner(ctx context.Context, email string) ([]models.Course, error) {
	return s.filterCourses(func(c *models.Course) bool { return c.UserEmail == email })
}

func (s *MemoryStore) filterCourses(keep func(*models.Course) bool) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	courses := []models.Course{}
	for _, c := range s.courses {
		if keep(c) {
			courses = append(courses, *c)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (s *MemoryStore) GetCourseByID(_ context.Context, id string) (*models.Course, error) {
	oid, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	c, ok := s.courses[oid]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", id, errdefs.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) CreateCourse(_ context.Context, course *models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	now := time.Now().UTC()
	course.ID = primitive.NewObjectID()
	course.CreatedAt, course.UpdatedAt = now, now
	cp := *course
	s.courses[course.ID] = &cp
	return nil
}

func (s *MemoryStore) UpsertCourse(_ context.Context, id string, fields map[string]interface{}) (*store.WriteResult, error) {
	oid, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}

	res := &store.WriteResult{}
	c, ok := s.courses[oid]
	if ok {
		res.Matched, res.Modified = 1, 1
	} else {
		c = &models.Course{ID: oid, CreatedAt: time.Now().UTC()}
		s.courses[oid] = c
		res.Upserted, res.UpsertedID = 1, id
	}
	for k, v := range fields {
		str, _ := v.(string)
		switch k {
		case "title":
			c.Title = str
		case "category":
			c.Category = str
		case "price":
			c.Price, _ = v.(float64)
		case "courseDuration":
			c.CourseDuration = str
		case "level":
			c.Level = str
		case "courseBanner":
			c.CourseBanner = str
		case "description":
			c.Description = str
		case "instructor":
			c.Instructor = str
		case "instructorPhoto":
			c.InstructorPhoto = str
		}
	}
	c.UpdatedAt = time.Now().UTC()
	return res, nil
}

func (s *MemoryStore) DeleteCourse(_ context.Context, id string) (int64, error) {
	oid, err := s.parseID(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return 0, s.Fail
	}
	if _, ok := s.courses[oid]; !ok {
		return 0, nil
	}
	delete(s.courses, oid)
	return 1, nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if _, ok := s.payments[payment.TransactionID]; ok {
		return fmt.Errorf("payment %s: %w", payment.TransactionID, errdefs.ErrAlreadyExists)
	}
	payment.ID = primitive.NewObjectID()
	cp := *payment
	s.payments[payment.TransactionID] = &cp
	return nil
}

func (s *MemoryStore) GetPaymentByTransactionID(_ context.Context, tranID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	p, ok := s.payments[tranID]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", tranID, errdefs.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) MarkPaymentCreated(_ context.Context, tranID, sessionKey, gatewayURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	p, ok := s.payments[tranID]
	if !ok || p.Status != models.PaymentStatusPending {
		return nil
	}
	p.Status = models.PaymentStatusCreated
	p.SessionKey = sessionKey
	p.GatewayURL = gatewayURL
	return nil
}

func (s *MemoryStore) MarkPaymentPaid(_ context.Context, tranID, validationID string, paidAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return 0, s.Fail
	}
	p, ok := s.payments[tranID]
	if !ok || (p.Status != models.PaymentStatusPending && p.Status != models.PaymentStatusCreated) {
		return 0, nil
	}
	p.Status = models.PaymentStatusPaid
	p.Paid = true
	p.ValidationID = validationID
	p.PaidAt = &paidAt
	return 1, nil
}

func (s *MemoryStore) DeletePayment(_ context.Context, tranID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return 0, s.Fail
	}
	p, ok := s.payments[tranID]
	if !ok || p.Paid {
		return 0, nil
	}
	delete(s.payments, tranID)
	return 1, nil
}

// PaymentCount reports how many payment records exist
func (s *MemoryStore) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}
