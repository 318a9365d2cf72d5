package client

import (
	"fmt"
	"strings"
)

// Link is one stored doublet as reported by the daemon.
type Link struct {
	ID     uint64 `json:"id"`
	FromID uint64 `json:"from_id"`
	ToID   uint64 `json:"to_id"`
}

// InputLink asks for the link from FromID to ToID.
type InputLink struct {
	FromID uint64 `json:"from_id"`
	ToID   uint64 `json:"to_id"`
}

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
	// Version is the daemon version.
	Version string `json:"version"`
}

type insertRequest struct {
	Objects []InputLink `json:"objects"`
}

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
}

// GraphQLErrors is returned by Query when the daemon reported errors.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// APIError is a non-2xx response from the REST surface.
type APIError struct {
	StatusCode int
	// Code is the "error" field of the body, e.g. "store_capacity_exceeded".
	Code string `json:"error"`
	// Reason is set for some invalid_request responses.
	Reason string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("linkgate: %d %s (%s)", e.StatusCode, e.Code, e.Reason)
	}
	return fmt.Sprintf("linkgate: %d %s", e.StatusCode, e.Code)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 503
}
