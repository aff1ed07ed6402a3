package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	ServiceErrorType    = "service_error"
)

// Request bodies are small JSON documents
const MaxBodyBytes = 64 << 10

var validate = validator.New()

func init() {
	configureValidator(validate)
}

type Struct any

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	JSONWithStatus(w, data, http.StatusOK)
}

// ServiceError renders error that has no stable code (auth failures, unexpected errors)
func ServiceError(w http.ResponseWriter, message string, status int) {
	CodedError(w, "", message, status)
}

// CodedError renders ServiceError with stable machine readable code
func CodedError(w http.ResponseWriter, code string, message string, status int) {
	JSONWithStatus(w, ErrorResponse{Error: ServiceErrorType, Code: code, Message: message}, status)
}

// DecodeError renders request body decoding failure.
// Too large body is 413, everything else is 400
func DecodeError(w http.ResponseWriter, err error) {
	response := ErrorResponse{Error: DecodingErrorType}
	status := http.StatusBadRequest

	var (
		typeErr    *json.UnmarshalTypeError
		syntaxErr  *json.SyntaxError
		maxSizeErr *http.MaxBytesError
	)

	switch {
	case errors.Is(err, io.EOF):
		response.Message = "Request body is empty"
	case errors.As(err, &maxSizeErr):
		response.Message = fmt.Sprintf("Request body is larger than %d bytes", maxSizeErr.Limit)
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &typeErr):
		response.Message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	case errors.As(err, &syntaxErr):
		response.Message = fmt.Sprintf("Malformed JSON at position %d", syntaxErr.Offset)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		response.Message = fmt.Sprintf("Unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		response.Message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	JSONWithStatus(w, response, status)
}

// Render ValidationErrors, one message per invalid field
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		Error:   ValidationErrorType,
		Message: "Request validation failed",
		Fields:  make(map[string]string, len(errs)),
	}

	for _, fieldError := range errs {
		response.Fields[fieldError.Field()] = fieldMessage(fieldError)
	}

	JSONWithStatus(w, response, http.StatusBadRequest)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Value is too short (minimum %s)", fe.Param())
	case "max":
		return fmt.Sprintf("Value is too long (maximum %s)", fe.Param())
	case "gt":
		return fmt.Sprintf("Value must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Value must be one of: %s", fe.Param())
	default:
		return "Invalid value"
	}
}

// BindAndValidate decodes JSON request body into T and validates it with struct tags.
// Unknown fields are rejected. On failure the error response is already written.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&value); err != nil {
		DecodeError(w, err)
		return value, err
	}

	if err := validate.Struct(value); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			ServiceError(w, "Request can't be validated", http.StatusInternalServerError)
			return value, err
		}
		ValidationErrors(w, errs)
		return value, err
	}

	return value, nil
}

// JSONWithStatus sends data as json and enforces status code
func JSONWithStatus(w http.ResponseWriter, data any, status int) {
	buf := &bytes.Buffer{}

	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
