package api

import "github.com/rmax-ai/linkgate/pkg/gateway"

// LinkID is the identifier type served by this deployment.
type LinkID = uint64

// Link matches one element of the GET /v1/links response.
type Link = gateway.Link[LinkID]

// InputLinkRequest is one element of the POST /v1/links objects array.
// Pointers distinguish a missing field from the identifier 0.
type InputLinkRequest struct {
	FromID *LinkID `json:"from_id"`
	ToID   *LinkID `json:"to_id"`
}

// InsertLinksRequest matches the POST /v1/links body schema
type InsertLinksRequest struct {
	Objects []InputLinkRequest `json:"objects"`
}

// GraphQLRequest is the body of POST /.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// HealthResponse matches the response for GET /v1/health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
