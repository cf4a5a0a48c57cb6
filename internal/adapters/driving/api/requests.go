package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query    string  `json:"query" validate:"required,max=1000"`
	Mode     string  `json:"mode" validate:"omitempty,oneof=semantic keyword hybrid"`
	TopK     int     `json:"top_k" validate:"omitempty,gte=1,lte=100"`
	MinScore float64 `json:"min_score" validate:"gte=0"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question string  `json:"question" validate:"required,max=1000"`
	Mode     string  `json:"mode" validate:"omitempty,oneof=semantic keyword hybrid"`
	TopK     int     `json:"top_k" validate:"omitempty,gte=1,lte=100"`
	MinScore float64 `json:"min_score" validate:"gte=0"`
}

func (r *SearchRequest) options() domain.SearchOptions {
	return domain.SearchOptions{Mode: domain.SearchMode(r.Mode), TopK: r.TopK, MinScore: r.MinScore}
}

func (r *QueryRequest) options() domain.SearchOptions {
	return domain.SearchOptions{Mode: domain.SearchMode(r.Mode), TopK: r.TopK, MinScore: r.MinScore}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseAndValidate decodes the JSON body into v and validates it.
func parseAndValidate(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if fields := validationErrors(v); len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

func validationErrors(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"body": err.Error()}
	}
	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return fields
}

// splitTags parses a comma separated tag list.
func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
