package service

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/higai/site-admin/internal/content"
)

var ErrValidation = errors.New("validation failed")

// ValidationError lists the offending fields and their messages.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+e.Fields[n])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type fieldValidator struct {
	v *validator.Validate
}

func newValidator() *fieldValidator {
	return &fieldValidator{v: validator.New()}
}

// fields normalises and checks a write payload against the kind's schema.
// Empty values are never rejected; only fields that carry a value are
// checked against their rule. Attributes outside the schema pass through.
func (fv *fieldValidator) fields(kind content.Kind, in map[string]any) (map[string]any, error) {
	out := content.CloneFields(in)
	bad := map[string]string{}
	for name, value := range in {
		f, ok := kind.Field(name)
		if !ok || value == nil {
			continue
		}
		if f.Type == content.FieldNumber {
			n, empty, err := toInt(value)
			if err != nil {
				bad[name] = err.Error()
				continue
			}
			if empty {
				delete(out, name)
				continue
			}
			out[name] = n
			if f.Rule != "" {
				if err := fv.v.Var(n, f.Rule); err != nil {
					bad[name] = describe(err)
				}
			}
			continue
		}
		s, ok := value.(string)
		if !ok {
			bad[name] = "must be text"
			continue
		}
		if s == "" || f.Rule == "" {
			continue
		}
		if err := fv.v.Var(s, f.Rule); err != nil {
			bad[name] = describe(err)
		}
	}
	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad}
	}
	return out, nil
}

// toInt accepts JSON numbers and numeric text.
func toInt(v any) (n int, empty bool, err error) {
	switch t := v.(type) {
	case int:
		return t, false, nil
	case int32:
		return int(t), false, nil
	case int64:
		return int(t), false, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, false, fmt.Errorf("must be a whole number")
		}
		return int(t), false, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, fmt.Errorf("must be a whole number")
		}
		return n, false, nil
	}
	return 0, false, fmt.Errorf("must be a number")
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "email":
			return "must be a valid email address"
		case "oneof":
			return "must be one of: " + fe.Param()
		case "min":
			return "must be at least " + fe.Param()
		case "max":
			return "must be at most " + fe.Param()
		case "required":
			return "is required"
		}
		return "failed " + fe.Tag()
	}
	return err.Error()
}

// structErrors converts validator errors on a request struct into a
// ValidationError keyed by the json field name.
func structErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	bad := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		bad[jsonName(fe.Field())] = describe(validator.ValidationErrors{fe})
	}
	return &ValidationError{Fields: bad}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
