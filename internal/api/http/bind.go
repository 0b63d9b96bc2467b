package http

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/errs"
)

const maxJSONBody = 1 << 20

const requiredText = "this field is required"

// Validator checks request payloads and renders failures with JSON field names.
type Validator struct {
	v  *validator.Validate
	tr ut.Translator
}

func NewValidator() *Validator {
	english := en.New()
	tr, _ := ut.New(english, english).GetTranslator("en")
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = en_translations.RegisterDefaultTranslations(v, tr)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterTranslation("required", tr,
		func(t ut.Translator) error { return t.Add("required", requiredText, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T("required", fe.Field())
			return s
		})
	return &Validator{v: v, tr: tr}
}

// Struct validates s and returns a Validation error keyed by JSON field name.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return errors.Wrap(err, "validate")
	}
	fields := make(map[string]string, len(ves))
	for _, fe := range ves {
		key := fe.Namespace()
		// drop the struct name prefix: "loginRequest.email" -> "email"
		if i := strings.IndexByte(key, '.'); i >= 0 {
			key = key[i+1:]
		}
		fields[key] = fe.Translate(val.tr)
	}
	return errs.NewValidation("invalid request", fields)
}

// decode reads a JSON body into dst and validates it.
func (val *Validator) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.E(errs.Validation, "request body is required")
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errs.Ef(errs.Validation, "request body exceeds %d bytes", tooBig.Limit)
		}
		return errs.Wrap(errs.Validation, err, "malformed JSON body")
	}
	return val.Struct(dst)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type page struct {
	Limit  int
	Offset int
}

// pageFrom reads limit and offset from the query. Every listing shares the
// same default and cap; the values applied are echoed in response headers.
func pageFrom(r *http.Request) page {
	q := r.URL.Query()
	p := page{
		Limit:  parseIntDefault(q.Get("limit"), defaultPageSize),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}
	if p.Limit == 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

func (p page) setHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Page-Limit", strconv.Itoa(p.Limit))
	w.Header().Set("X-Page-Offset", strconv.Itoa(p.Offset))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
