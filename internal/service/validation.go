package service

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/invoicely/invoicely/internal/model"
)

// Validation messages returned to clients.
const (
	MsgNameRequired   = "Name is required"
	MsgNameEmpty      = "Name cannot be empty"
	MsgUserIDRequired = "User ID is required"
	MsgInvalidUserID  = "Invalid user ID format"
	MsgInvalidEmail   = "Invalid email format"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("business_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("any_uuid", func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// BusinessInput is a create or update payload. Every attribute records
// whether it was supplied so updates can merge by key presence.
type BusinessInput struct {
	UserID  model.Field[string]
	Name    model.Field[string]
	Email   model.Field[string]
	Address model.Field[string]
	Phone   model.Field[string]
	Website model.Field[string]
	LogoURL model.Field[string]
	TaxID   model.Field[string]
}

// createRules is validated field by field in declaration order; the
// validator stops at the first failing tag of each field.
type createRules struct {
	Name   string `validate:"required"`
	UserID string `validate:"required,any_uuid"`
	Email  string `validate:"omitempty,business_email"`
}

var createMessages = map[string]string{
	"Name.required":        MsgNameRequired,
	"UserID.required":      MsgUserIDRequired,
	"UserID.any_uuid":      MsgInvalidUserID,
	"Email.business_email": MsgInvalidEmail,
}

// ValidateBusiness checks a payload and returns every violation as a
// human-readable message. An empty result means the payload is valid.
func ValidateBusiness(input BusinessInput, isUpdate bool) []string {
	if isUpdate {
		return validateUpdate(input)
	}

	rules := createRules{
		Name:   input.Name.Value,
		UserID: input.UserID.Value,
		Email:  input.Email.Value,
	}

	err := validate.Struct(rules)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if msg, ok := createMessages[fe.Field()+"."+fe.Tag()]; ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func validateUpdate(input BusinessInput) []string {
	var messages []string

	if input.Name.Set && (input.Name.Null || input.Name.Value == "") {
		messages = append(messages, MsgNameEmpty)
	}

	if input.Email.Present() && input.Email.Value != "" {
		if validate.Var(input.Email.Value, "business_email") != nil {
			messages = append(messages, MsgInvalidEmail)
		}
	}

	return messages
}

// parseID canonicalizes a UUID string. Braced, URN and unhyphenated
// forms are accepted.
func parseID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// ParseID returns the canonical form of a UUID or ErrInvalidID.
func ParseID(id string) (string, error) {
	canonical, ok := parseID(id)
	if !ok {
		return "", ErrInvalidID
	}
	return canonical, nil
}
