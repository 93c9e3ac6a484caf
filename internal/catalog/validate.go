package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Bounds a record must satisfy before it may be submitted to the remote
// create operation. Prices and discounts travel as numeric strings.
const (
	MinPrice    = 1
	MaxPrice    = 9999
	MinDiscount = 1
	MaxDiscount = 99
)

// Validate checks the record against the strict submission rules: non-empty
// trimmed name and brand, price an integer in [MinPrice, MaxPrice], discount
// an integer in [MinDiscount, MaxDiscount]. A failing record must never reach
// the remote create operation.
func (r ProductRecord) Validate() error {
	var fields []FieldError

	if strings.TrimSpace(r.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "must not be empty"})
	}
	if r.BrandName == nil || strings.TrimSpace(*r.BrandName) == "" {
		fields = append(fields, FieldError{Field: "brand_name", Message: "must not be empty"})
	}
	if fe := validateIntRange("price", r.Price, MinPrice, MaxPrice); fe != nil {
		fields = append(fields, *fe)
	}
	if fe := validateIntRange("discount", r.Discount, MinDiscount, MaxDiscount); fe != nil {
		fields = append(fields, *fe)
	}

	if len(fields) > 0 {
		return &InvalidRecordError{Fields: fields}
	}
	return nil
}

func validateIntRange(field string, value *string, min, max int) *FieldError {
	if value == nil {
		return &FieldError{Field: field, Message: "is required"}
	}
	n, err := strconv.Atoi(strings.TrimSpace(*value))
	if err != nil {
		return &FieldError{Field: field, Message: "must be a whole number"}
	}
	if n < min || n > max {
		return &FieldError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d", min, max),
		}
	}
	return nil
}
