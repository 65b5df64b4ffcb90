package services

import (
	"errors"
	"log"
	"net/http"
	"unicode/utf8"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/leebenson/conform"
	errs "github.com/techagentng/collera/errors"
	"github.com/techagentng/collera/models"
)

// Validator normalises and checks inbound message payloads.
type Validator struct {
	validate  *validator.Validate
	trans     ut.Translator
	maxLength int
}

func NewValidator(maxLength int) *Validator {
	if maxLength <= 0 || maxLength > models.MaxContentLength {
		maxLength = models.MaxContentLength
	}

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	validate := validator.New()
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		log.Printf("couldn't register validation translations: %v", err)
	}

	return &Validator{validate: validate, trans: trans, maxLength: maxLength}
}

// SendMessage trims the request in place and rejects empty, oversized or
// mistyped content.
func (v *Validator) SendMessage(req *models.SendMessageRequest) error {
	if req == nil {
		return errs.ErrEmptyContent
	}
	if err := conform.Strings(req); err != nil {
		return errs.New(err.Error(), http.StatusBadRequest)
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}

	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
			return errs.New(err.Error(), http.StatusBadRequest)
		}
		first := validationErrs[0]
		if first.Field() == "Content" && first.Tag() == "required" {
			return errs.ErrEmptyContent
		}
		return errs.New(first.Translate(v.trans), http.StatusBadRequest)
	}

	if utf8.RuneCountInString(req.Content) > v.maxLength {
		return errs.ErrContentTooLong
	}
	return nil
}
