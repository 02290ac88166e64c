package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a marketplace account, keyed by email
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Email     string             `bson:"email" json:"email"`
	Name      string             `bson:"name,omitempty" json:"name,omitempty"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	PhotoURL  string             `bson:"photoURL,omitempty" json:"photoURL,omitempty"`
	Address   string             `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt time.Time          `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Course represents a course in the catalog
type Course struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Title           string             `bson:"title" json:"title"`
	Category        string             `bson:"category,omitempty" json:"category,omitempty"`
	Price           float64            `bson:"price" json:"price"`
	CourseDuration  string             `bson:"courseDuration,omitempty" json:"courseDuration,omitempty"`
	Level           string             `bson:"level,omitempty" json:"level,omitempty"`
	CourseBanner    string             `bson:"courseBanner,omitempty" json:"courseBanner,omitempty"`
	Description     string             `bson:"description,omitempty" json:"description,omitempty"`
	Instructor      string             `bson:"instructor,omitempty" json:"instructor,omitempty"`
	InstructorPhoto string             `bson:"instructorPhoto,omitempty" json:"instructorPhoto,omitempty"`
	UserEmail       string             `bson:"userEmail" json:"userEmail"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// UnmarshalJSON accepts the price as a JSON number or a numeric string
func (c *Course) UnmarshalJSON(data []byte) error {
	type plain Course
	aux := struct {
		*plain
		Price json.RawMessage `json:"price"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Price) == 0 || string(aux.Price) == "null" {
		return nil
	}

	if err := json.Unmarshal(aux.Price, &c.Price); err == nil {
		return nil
	}
	var text string
	if err := json.Unmarshal(aux.Price, &text); err != nil {
		return fmt.Errorf("price: %s is not a number", aux.Price)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return fmt.Errorf("price: %q is not a number", text)
	}
	c.Price = price
	return nil
}

// PaymentData is the customer-supplied order payload, stored verbatim
type PaymentData struct {
	Name      string `bson:"name" json:"name"`
	Email     string `bson:"email" json:"email"`
	Phone     string `bson:"phone" json:"phone"`
	Address   string `bson:"address,omitempty" json:"address,omitempty"`
	ProductID string `bson:"productId" json:"productId"`
}

// Payment tracks one checkout attempt against the gateway
type Payment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	TransactionID string             `bson:"transactionId" json:"transactionId"`
	PaymentData   PaymentData        `bson:"paymentData" json:"paymentData"`
	ProductTitle  string             `bson:"productTitle,omitempty" json:"productTitle,omitempty"`
	Price         float64            `bson:"price" json:"price"`
	Currency      string             `bson:"currency" json:"currency"`
	Status        string             `bson:"status" json:"status"`
	Paid          bool               `bson:"paid" json:"paid"`
	SessionKey    string             `bson:"sessionKey,omitempty" json:"-"`
	GatewayURL    string             `bson:"gatewayUrl,omitempty" json:"gatewayUrl,omitempty"`
	ValidationID  string             `bson:"validationId,omitempty" json:"validationId,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	PaidAt        *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
}

// Payment statuses. Abandoned payments are deleted, so they have no status.
const (
	PaymentStatusPending = "pending"
	PaymentStatusCreated = "created"
	PaymentStatusPaid    = "paid"
)

// Callback outcomes reported by the gateway
const (
	OutcomeSuccess = "success"
	OutcomeFail    = "fail"
	OutcomeCancel  = "cancel"
)

// ValidOutcome reports whether o is a known callback outcome
func ValidOutcome(o string) bool {
	switch o {
	case OutcomeSuccess, OutcomeFail, OutcomeCancel:
		return true
	}
	return false
}

// Editable field allow-lists for upserts
var (
	UserProfileFields = []string{"name", "phone", "photoURL", "address"}
	CourseFields      = []string{
		"title", "category", "price", "courseDuration", "level",
		"courseBanner", "description", "instructor", "instructorPhoto",
	}
)
