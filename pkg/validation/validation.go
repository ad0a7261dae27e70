// Package validation holds the struct validator shared by tool handlers.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vinodismyname/kpibrief/pkg/pagination"
)

// SpreadsheetExtensions lists the input formats accepted by the spreadsheet_ext rule.
var SpreadsheetExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".csv"}

var (
	v    *validator.Validate
	once sync.Once
)

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		_ = v.RegisterValidation("spreadsheet_ext", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return false
			}
			ext := strings.ToLower(filepath.Ext(s))
			for _, e := range SpreadsheetExtensions {
				if ext == e {
					return true
				}
			}
			return false
		})
		// Empty is allowed; pair with omitempty.
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
		// Column names are free text but must not be blank-only.
		_ = v.RegisterValidation("column", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || strings.TrimSpace(s) != ""
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a "CODE: message" string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without":
		return fmt.Sprintf("VALIDATION: %s is required (or supply cursor)", field)
	case "spreadsheet_ext":
		return "VALIDATION: path must be a spreadsheet (" + strings.Join(SpreadsheetExtensions, ", ") + ")"
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination without a cursor"
	case "column":
		return fmt.Sprintf("VALIDATION: %s must name a column", field)
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}
