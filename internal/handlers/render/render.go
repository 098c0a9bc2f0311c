package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	validatepkg "github.com/nkiryanov/vidtube/internal/service/validate"
)

var validate = validatepkg.New()

type Struct any

// Envelope every successful response is wrapped in
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type ErrorResponse struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Success    bool              `json:"success"`
	Error      apperrors.Kind    `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Render data wrapped in envelope
func JSON(w http.ResponseWriter, code int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}

	jsonWithStatus(w, Response{
		StatusCode: code,
		Data:       data,
		Message:    message,
		Success:    code < http.StatusBadRequest,
	}, code)
}

// Render error returned by services
// Status and message come from the error kind, so internal details never leak
func Error(w http.ResponseWriter, err error) {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		ValidationErrors(w, errs)
		return
	}

	kind := apperrors.KindOf(err)
	message := errorMessage(err)
	if kind == apperrors.KindValidation {
		message = err.Error()
	}

	ServiceError(w, kind, message, StatusCode(err))
}

// Render ServiceError
func ServiceError(w http.ResponseWriter, kind apperrors.Kind, message string, code int) {
	jsonWithStatus(w, ErrorResponse{
		StatusCode: code,
		Message:    message,
		Error:      kind,
	}, code)
}

// Response status for the error
func StatusCode(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindConflict:
		return http.StatusBadRequest
	case apperrors.KindAuth:
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			return http.StatusNotFound
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrAccountAlreadyExists):
		return "User with email or username already exists"
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, apperrors.ErrTokenInvalidSignature), errors.Is(err, apperrors.ErrTokenMalformed):
		return "Invalid token"
	case errors.Is(err, apperrors.ErrTokenMissing):
		return "Unauthorized request"
	case errors.Is(err, apperrors.ErrTokenReused):
		return "Refresh token is expired or used"
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return "User does not exist"
	case errors.Is(err, apperrors.ErrWrongPassword):
		return "Invalid user credentials"
	case errors.Is(err, apperrors.ErrBlobStoreUnavailable):
		return "Media storage unavailable"
	default:
		return "Internal server error"
	}
}

// Render json DecodeError
func DecodeError(w http.ResponseWriter, err error) {
	var message string

	// Try to provide more specific error message based on error type
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	default:
		message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	ServiceError(w, apperrors.KindValidation, message, http.StatusBadRequest)
}

// Render ValidationErrors
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		StatusCode: http.StatusBadRequest,
		Message:    "Request validation failed",
		Error:      apperrors.KindValidation,
		Fields:     make(map[string]string, len(errs)),
	}

	// Create user-friendly error messages based on validation tag
	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required", "notblank", "required_without":
			message = "This field is required"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too long (maximum %s)", fieldError.Param())
		case "email":
			message = "Invalid email"
		default:
			message = "Invalid value"
		}

		response.Fields[fieldError.Field()] = message
	}

	jsonWithStatus(w, response, http.StatusBadRequest)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	err := json.NewDecoder(r.Body).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	err = validate.Struct(value)
	if err != nil {
		// pretty sure cast will be ok cause expecting T is valid struct
		errs := err.(validator.ValidationErrors)
		ValidationErrors(w, errs)
		return value, err
	}

	return value, nil
}

// renderJSONWithStatus sends data as json and enforces status code
func jsonWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
