package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/rmax-ai/linkgate/pkg/gateway"
	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/logging"
)

// linkIDType accepts integer literals, numeric variables and decimal strings.
// Values that are negative, fractional or wider than 64 bits coerce to nil,
// which graphql reports as an invalid argument before any resolver runs.
var linkIDType = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "LinkID",
	Description: "Unsigned 64-bit link identifier.",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case LinkID:
			return v
		case *LinkID:
			if v == nil {
				return nil
			}
			return *v
		}
		return nil
	},
	ParseValue: func(value interface{}) interface{} {
		id, err := coerceLinkID(value)
		if err != nil {
			return nil
		}
		return id
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.IntValue:
			if id, err := links.ParseID[LinkID](v.Value); err == nil {
				return id
			}
		case *ast.StringValue:
			if id, err := links.ParseID[LinkID](v.Value); err == nil {
				return id
			}
		}
		return nil
	},
})

func coerceLinkID(value interface{}) (LinkID, error) {
	switch v := value.(type) {
	case LinkID:
		return v, nil
	case json.Number:
		return links.ParseID[LinkID](v.String())
	case string:
		return links.ParseID[LinkID](v)
	case int:
		if v >= 0 {
			return LinkID(v), nil
		}
	case int64:
		if v >= 0 {
			return LinkID(v), nil
		}
	case float64:
		// Only integral values that survived a float64 round trip unchanged.
		if v >= 0 && v <= 1<<53 && v == math.Trunc(v) {
			return LinkID(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %v", links.ErrInvalidID, value)
}

var linkType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Link",
	Fields: graphql.Fields{
		"id":      &graphql.Field{Type: graphql.NewNonNull(linkIDType)},
		"from_id": &graphql.Field{Type: graphql.NewNonNull(linkIDType)},
		"to_id":   &graphql.Field{Type: graphql.NewNonNull(linkIDType)},
	},
})

var inputLinkType = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "InputLink",
	Fields: graphql.InputObjectConfigFieldMap{
		"from_id": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(linkIDType)},
		"to_id":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(linkIDType)},
	},
})

// newSchema builds the two operation schema: query links and mutation insert_links.
func newSchema(reader LinkReader, writer LinkWriter) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"links": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(linkType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ls, err := reader.Links(p.Context)
					if err != nil {
						return nil, err
					}
					return linkRecords(ls), nil
				},
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"insert_links": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(linkType))),
				Args: graphql.FieldConfigArgument{
					"objects": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(inputLinkType))),
					},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					objects, err := inputLinks(p.Args["objects"])
					if err != nil {
						return nil, err
					}
					ls, err := writer.InsertLinks(p.Context, objects)
					if err != nil {
						return nil, err
					}
					return linkRecords(ls), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
	})
}

func linkRecords(ls []gateway.Link[LinkID]) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(ls))
	for _, l := range ls {
		records = append(records, map[string]interface{}{
			"id":      l.ID,
			"from_id": l.FromID,
			"to_id":   l.ToID,
		})
	}
	return records
}

func inputLinks(arg interface{}) ([]gateway.InputLink[LinkID], error) {
	items, ok := arg.([]interface{})
	if !ok {
		return nil, fmt.Errorf("objects: expected a list, got %T", arg)
	}

	objects := make([]gateway.InputLink[LinkID], 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("objects[%d]: expected an object, got %T", i, item)
		}
		from, err := coerceLinkID(fields["from_id"])
		if err != nil {
			return nil, fmt.Errorf("objects[%d].from_id: %w", i, err)
		}
		to, err := coerceLinkID(fields["to_id"])
		if err != nil {
			return nil, fmt.Errorf("objects[%d].to_id: %w", i, err)
		}
		objects = append(objects, gateway.InputLink[LinkID]{FromID: from, ToID: to})
	}
	return objects, nil
}

// handleGraphQL executes one operation against the schema.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req GraphQLRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Query == "" {
		http.Error(w, `{"error":"invalid_request","reason":"missing_query"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := s.resolverContext(r)
	defer cancel()

	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	if result.HasErrors() {
		logging.FromContext(r.Context()).Warn("graphql_errors", "count", len(result.Errors), "first", result.Errors[0].Message)
	}

	writeJSON(w, r, http.StatusOK, result)
}

