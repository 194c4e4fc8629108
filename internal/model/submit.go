package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Provider names accepted by the pipeline.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// SubmitRequest is a source document plus its generation configuration.
type SubmitRequest struct {
	File           string `validate:"required,endswith=.pdf,file"`
	Subject        string `validate:"required,max=200"`
	Persona        string `validate:"required,max=200"`
	AcademicLevel  string `validate:"required,max=100"`
	TargetPages    int    `validate:"min=1,max=2000"`
	MaxNewDiagrams int    `validate:"min=0,max=500"`
	SkipImages     bool
	Provider       string `validate:"oneof=gemini openai anthropic ollama"`
	OllamaURL      string `validate:"omitempty,url"`
}

// DefaultSubmitRequest returns the backend's documented defaults for everything but the file.
func DefaultSubmitRequest(file string) SubmitRequest {
	return SubmitRequest{
		File:           file,
		Subject:        "Engineering",
		Persona:        "Senior Engineering Professor",
		AcademicLevel:  "Undergraduate",
		TargetPages:    600,
		MaxNewDiagrams: 40,
		Provider:       ProviderGemini,
		OllamaURL:      "http://localhost:11434",
	}
}

// ValidationError reports a malformed submission. The job is never created.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid submission"
	}
	return "invalid submission: " + strings.Join(e.Problems, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func submitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the request structurally. The returned error is a *ValidationError.
func (r SubmitRequest) Validate() error {
	err := submitValidator().Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return &ValidationError{Problems: problems}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "file":
		return fmt.Sprintf("%s: no such file %q", fe.Field(), fe.Value())
	case "endswith":
		return fmt.Sprintf("%s must end with %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s must be %s %s", fe.Field(), map[string]string{"min": ">=", "max": "<="}[fe.Tag()], fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
