// Package extract is the boundary between the untrusted extraction
// collaborator (a language model or a form) and the booking engine. Payloads
// are decoded into a strict Record, unknown keys are discarded, and each
// field is validated on its own so one bad value does not sink the rest.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// SubIntent is the booking sub-intent the collaborator classified the turn as.
type SubIntent string

const (
	IntentStart   SubIntent = "start"
	IntentProvide SubIntent = "provide"
	IntentConfirm SubIntent = "confirm"
	IntentCancel  SubIntent = "cancel"
	IntentUnknown SubIntent = "unknown"
)

// Record is one turn's extracted booking fields. A nil pointer means the
// field was not mentioned in the turn.
type Record struct {
	Service          *string   `json:"service"          validate:"omitempty,max=120,freetext"`
	Date             *string   `json:"date"             validate:"omitempty,max=64,datetext"`
	Time             *string   `json:"time"             validate:"omitempty,max=32,datetext"`
	Name             *string   `json:"name"             validate:"omitempty,max=120,freetext"`
	RecipientName    *string   `json:"recipientName"    validate:"omitempty,max=120,freetext"`
	RecipientPhone   *string   `json:"recipientPhone"   validate:"omitempty,min=7,max=32,phonechars"`
	IsForSomeoneElse *bool     `json:"isForSomeoneElse"`
	SubIntent        SubIntent `json:"subIntent"        validate:"omitempty,oneof=start provide confirm cancel unknown"`
}

// Empty reports whether no booking field is present.
func (r Record) Empty() bool {
	return r.Service == nil && r.Date == nil && r.Time == nil && r.Name == nil &&
		r.RecipientName == nil && r.RecipientPhone == nil && r.IsForSomeoneElse == nil
}

// Rejection names a field that was dropped and why.
type Rejection struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ErrMalformed marks a payload that is not a JSON object at all.
var ErrMalformed = errors.New("malformed extraction payload")

var (
	dateTextRE   = regexp.MustCompile(`^[\p{L}0-9 :./,'-]+$`)
	phoneCharsRE = regexp.MustCompile(`^\+?[0-9 ()-]+$`)
)

// Validator cleans Records. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with the custom field rules registered.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("freetext", validateFreeText)
	_ = v.RegisterValidation("datetext", func(fl validator.FieldLevel) bool {
		return dateTextRE.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phonechars", func(fl validator.FieldLevel) bool {
		return phoneCharsRE.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

func validateFreeText(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	for _, r := range s {
		if unicode.IsControl(r) || r == '<' || r == '>' || r == '{' || r == '}' {
			return false
		}
	}
	return true
}

// Decode parses raw into a Record. Unknown keys are ignored.
func Decode(raw []byte) (Record, error) {
	var r Record
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, errors.Mark(errors.Wrap(err, "decode extraction"), ErrMalformed)
	}
	return r, nil
}

// Clean trims every string field, drops empties, and removes any field that
// fails validation. An unrecognized sub-intent becomes IntentUnknown.
func (v *Validator) Clean(r Record) (Record, []Rejection) {
	for _, p := range []**string{&r.Service, &r.Date, &r.Time, &r.Name, &r.RecipientName, &r.RecipientPhone} {
		if *p == nil {
			continue
		}
		s := strings.Join(strings.Fields(**p), " ")
		if s == "" {
			*p = nil
			continue
		}
		*p = &s
	}
	r.SubIntent = SubIntent(strings.ToLower(strings.TrimSpace(string(r.SubIntent))))

	err := v.validate.Struct(r)
	if err == nil {
		if r.SubIntent == "" {
			r.SubIntent = IntentUnknown
		}
		return r, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		log.Warn().Err(err).Msg("extraction validation failed")
		return Record{SubIntent: IntentUnknown}, []Rejection{{Field: "*", Reason: err.Error()}}
	}

	var rejected []Rejection
	for _, fe := range verrs {
		field := fe.Field()
		switch field {
		case "service":
			r.Service = nil
		case "date":
			r.Date = nil
		case "time":
			r.Time = nil
		case "name":
			r.Name = nil
		case "recipientName":
			r.RecipientName = nil
		case "recipientPhone":
			r.RecipientPhone = nil
		case "subIntent":
			r.SubIntent = IntentUnknown
		}
		rejected = append(rejected, Rejection{Field: field, Reason: reason(fe)})
		log.Debug().Str("field", field).Str("rule", fe.Tag()).Msg("extraction field dropped")
	}
	if r.SubIntent == "" {
		r.SubIntent = IntentUnknown
	}
	return r, rejected
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "phonechars":
		return "must contain only digits, spaces, dashes, brackets and a leading +"
	case "datetext":
		return "contains characters not allowed in a date or time"
	case "freetext":
		return "contains control or markup characters"
	default:
		return fe.Error()
	}
}
