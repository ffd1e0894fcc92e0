package types

import (
	"fmt"
	"strings"
	"time"
)

// Contact is a messaging recipient. The segments service only reads
// contacts; they are written by import and CRM code elsewhere.
type Contact struct {
	// ContactID is a UUID v7, generated on creation.
	ContactID string `json:"contact_id" yaml:"contact_id"`

	// OwnerID is the user the contact belongs to.
	OwnerID string `json:"owner_id" yaml:"owner_id"`

	// FirstName and LastName are optional.
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`

	// Email and Phone are the addresses messages go to; at least one is set.
	Email string `json:"email" yaml:"email"`
	Phone string `json:"phone" yaml:"phone"`

	// CreatedAt is the timestamp of creation.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// UpdatedAt is the timestamp of the last change.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

var contactFields = []string{"contact_id", "owner_id", "first_name", "last_name", "email", "phone", "created_at", "updated_at"}

// DisplayName joins the name parts, falling back to email then phone.
func (c *Contact) DisplayName() string {
	if n := strings.TrimSpace(c.FirstName + " " + c.LastName); n != "" {
		return n
	}
	if c.Email != "" {
		return c.Email
	}
	return c.Phone
}

func (c *Contact) DocumentID() string      { return c.ContactID }
func (c *Contact) SetDocumentID(id string) { c.ContactID = id }
func (c *Contact) Fields() []string        { return contactFields }

func (c *Contact) Field(name string) (string, bool) {
	switch name {
	case "contact_id":
		return c.ContactID, true
	case "owner_id":
		return c.OwnerID, true
	case "first_name":
		return c.FirstName, true
	case "last_name":
		return c.LastName, true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	case "created_at":
		return FormatTime(c.CreatedAt), true
	case "updated_at":
		return FormatTime(c.UpdatedAt), true
	}
	return "", false
}

func (c *Contact) SetField(name, value string) error {
	var err error
	switch name {
	case "contact_id":
		c.ContactID = value
	case "owner_id":
		c.OwnerID = value
	case "first_name":
		c.FirstName = value
	case "last_name":
		c.LastName = value
	case "email":
		c.Email = value
	case "phone":
		c.Phone = value
	case "created_at":
		c.CreatedAt, err = ParseTime(value)
	case "updated_at":
		c.UpdatedAt, err = ParseTime(value)
	default:
		return fmt.Errorf("contact %q: %w", name, ErrUnknownField)
	}
	return err
}

func (c *Contact) Stamp(now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
}

func (c *Contact) Clone() Document {
	cp := *c
	return &cp
}
