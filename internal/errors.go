package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type ErrorKind string

const (
	ErrorKindTransport    ErrorKind = "TRANSPORT_ERROR"
	ErrorKindUnauthorized ErrorKind = "UNAUTHORIZED"
	ErrorKindForbidden    ErrorKind = "FORBIDDEN"
	ErrorKindValidation   ErrorKind = "VALIDATION_ERROR"
	ErrorKindHTTP         ErrorKind = "HTTP_ERROR"
)

// User facing messages shared by the interceptor and the stores.
const (
	MsgCommunicationFailure = "Erro ao se comunicar com o servidor"
	MsgSessionExpired       = "Sessão expirada. Faça login novamente."
	MsgForbidden            = "Você não tem permissão para executar esta ação."
	MsgSessionValidation    = "Não foi possível validar a sessão. Tente novamente."
	MsgUserValidation       = "Não foi possível validar o usuário."
)

// FieldErrors maps a request field to the messages the server reported for it.
type FieldErrors map[string][]string

// APIError is the single error shape produced at the HTTP boundary. Status is
// zero when no response was received.
type APIError struct {
	Kind          ErrorKind      `json:"kind"`
	Status        int            `json:"status,omitempty"`
	Message       string         `json:"message"`
	ServerMessage string         `json:"-"`
	FieldErrors   FieldErrors    `json:"errors,omitempty"`
	Payload       map[string]any `json:"-"`
	Messages      []string       `json:"messages,omitempty"`
	Cause         error          `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return MsgCommunicationFailure
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// HasResponse reports whether the server answered at all.
func (e *APIError) HasResponse() bool {
	return e.Status != 0
}

func (e *APIError) IsSessionError() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// WithMessages attaches extracted messages and fills Message when it is empty.
func (e *APIError) WithMessages(messages []string) *APIError {
	e.Messages = messages
	if e.Message == "" {
		e.Message = strings.Join(messages, " ")
	}
	return e
}

// FlattenFieldErrors returns every field message, fields in sorted order.
func (e *APIError) FlattenFieldErrors() []string {
	if len(e.FieldErrors) == 0 {
		return nil
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range e.FieldErrors[field] {
			if msg != "" {
				messages = append(messages, msg)
			}
		}
	}
	return messages
}

func NewTransportError(cause error) *APIError {
	message := MsgCommunicationFailure
	if cause != nil && cause.Error() != "" {
		message = cause.Error()
	}
	return &APIError{
		Kind:    ErrorKindTransport,
		Message: message,
		Cause:   cause,
	}
}

// NewHTTPError builds an APIError from a non-2xx response. Non-object bodies
// are ignored.
func NewHTTPError(status int, body []byte) *APIError {
	payload := map[string]any{}
	if len(body) > 0 {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			if obj, ok := decoded.(map[string]any); ok {
				payload = obj
			}
		}
	}

	apiErr := &APIError{
		Status:      status,
		Payload:     payload,
		FieldErrors: decodeFieldErrors(payload["errors"]),
	}

	if msg, ok := payload["message"].(string); ok && msg != "" {
		apiErr.ServerMessage = msg
		apiErr.Message = msg
	} else {
		apiErr.Message = fmt.Sprintf("request failed with status code %d", status)
	}

	switch {
	case status == http.StatusUnauthorized:
		apiErr.Kind = ErrorKindUnauthorized
	case status == http.StatusForbidden:
		apiErr.Kind = ErrorKindForbidden
	case status == http.StatusUnprocessableEntity || len(apiErr.FieldErrors) > 0:
		apiErr.Kind = ErrorKindValidation
	default:
		apiErr.Kind = ErrorKindHTTP
	}

	return apiErr
}

func decodeFieldErrors(raw any) FieldErrors {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}

	fieldErrors := make(FieldErrors, len(obj))
	for field, value := range obj {
		switch v := value.(type) {
		case string:
			fieldErrors[field] = append(fieldErrors[field], v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					fieldErrors[field] = append(fieldErrors[field], s)
				}
			}
		}
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status
	}
	return 0
}

// MessagesFrom extracts human readable messages from err: every field error
// first, then the top-level message, then fallback.
func MessagesFrom(err error, fallback string) []string {
	if err == nil {
		return []string{fallback}
	}
	if apiErr, ok := AsAPIError(err); ok {
		if messages := apiErr.FlattenFieldErrors(); len(messages) > 0 {
			return messages
		}
		if apiErr.Message != "" {
			return []string{apiErr.Message}
		}
		return []string{fallback}
	}
	if msg := err.Error(); msg != "" {
		return []string{msg}
	}
	return []string{fallback}
}
