package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/linkgate/pkg/links/mem"
)

type graphQLResponse struct {
	Data   map[string][]Link `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func doGraphQL(t *testing.T, h http.Handler, query string, variables map[string]any) graphQLResponse {
	t.Helper()
	body, err := json.Marshal(GraphQLRequest{Query: query, Variables: variables})
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp graphQLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestGraphQL_Scenario(t *testing.T) {
	h := newMemServer(t)

	resp := doGraphQL(t, h, `mutation {
		insert_links(objects: [{from_id: 1, to_id: 2}, {from_id: 2, to_id: 3}, {from_id: 1, to_id: 2}]) { id from_id to_id }
	}`, nil)
	require.Empty(t, resp.Errors)

	want := []Link{
		{ID: 1, FromID: 1, ToID: 2},
		{ID: 2, FromID: 2, ToID: 3},
		{ID: 1, FromID: 1, ToID: 2},
	}
	if diff := cmp.Diff(want, resp.Data["insert_links"]); diff != "" {
		t.Errorf("insert_links mismatch (-want +got):\n%s", diff)
	}

	resp = doGraphQL(t, h, `{ links { id from_id to_id } }`, nil)
	require.Empty(t, resp.Errors)
	if diff := cmp.Diff(want[:2], resp.Data["links"]); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestGraphQL_EmptyStore(t *testing.T) {
	h := newMemServer(t)
	resp := doGraphQL(t, h, `query { links { id } }`, nil)
	require.Empty(t, resp.Errors)
	links, ok := resp.Data["links"]
	assert.True(t, ok)
	assert.Empty(t, links)
}

func TestGraphQL_Variables(t *testing.T) {
	h := newMemServer(t)

	resp := doGraphQL(t, h, `mutation Insert($objects: [InputLink!]!) {
		insert_links(objects: $objects) { id from_id to_id }
	}`, map[string]any{
		"objects": []map[string]any{
			{"from_id": 5, "to_id": 6},
			{"from_id": "18446744073709551615", "to_id": 6},
		},
	})
	require.Empty(t, resp.Errors)
	assert.Equal(t, []Link{
		{ID: 1, FromID: 5, ToID: 6},
		{ID: 2, FromID: 18446744073709551615, ToID: 6},
	}, resp.Data["insert_links"])
}

func TestGraphQL_InvalidIdentifiers(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		variables map[string]any
	}{
		{"negative literal", `mutation { insert_links(objects: [{from_id: -1, to_id: 2}]) { id } }`, nil},
		{"overflowing literal", `mutation { insert_links(objects: [{from_id: 18446744073709551616, to_id: 2}]) { id } }`, nil},
		{"float literal", `mutation { insert_links(objects: [{from_id: 1.5, to_id: 2}]) { id } }`, nil},
		{"missing field", `mutation { insert_links(objects: [{from_id: 1}]) { id } }`, nil},
		{
			"negative variable",
			`mutation Insert($objects: [InputLink!]!) { insert_links(objects: $objects) { id } }`,
			map[string]any{"objects": []map[string]any{{"from_id": -3, "to_id": 1}}},
		},
		{
			"fractional variable",
			`mutation Insert($objects: [InputLink!]!) { insert_links(objects: $objects) { id } }`,
			map[string]any{"objects": []map[string]any{{"from_id": 2.5, "to_id": 1}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMemServer(t)
			resp := doGraphQL(t, h, tt.query, tt.variables)
			assert.NotEmpty(t, resp.Errors)

			resp = doGraphQL(t, h, `{ links { id } }`, nil)
			assert.Empty(t, resp.Data["links"], "invalid input must not reach the store")
		})
	}
}

func TestGraphQL_CapacityFailureIsReported(t *testing.T) {
	h := newMemServer(t, mem.WithCapacity(1))

	resp := doGraphQL(t, h, `mutation { insert_links(objects: [{from_id: 1, to_id: 2}, {from_id: 3, to_id: 4}]) { id } }`, nil)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0].Message, "capacity exceeded")
	assert.Empty(t, resp.Data["insert_links"])

	resp = doGraphQL(t, h, `{ links { id } }`, nil)
	assert.Empty(t, resp.Data["links"])
}

func TestGraphQL_BadEnvelope(t *testing.T) {
	h := newMemServer(t)

	w := do(t, h, http.MethodPost, "/", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/", `{"variables":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGraphQL_UnknownField(t *testing.T) {
	h := newMemServer(t)
	resp := doGraphQL(t, h, `{ links(first: 10) { id } }`, nil)
	assert.NotEmpty(t, resp.Errors)
}

func TestCoerceLinkID(t *testing.T) {
	tests := []struct {
		in      any
		want    LinkID
		wantErr bool
	}{
		{LinkID(7), 7, false},
		{json.Number("18446744073709551615"), 18446744073709551615, false},
		{json.Number("-1"), 0, true},
		{json.Number("1e3"), 0, true},
		{"42", 42, false},
		{"x", 0, true},
		{int(3), 3, false},
		{int(-3), 0, true},
		{int64(9), 9, false},
		{float64(12), 12, false},
		{float64(1.25), 0, true},
		{nil, 0, true},
	}
	for _, tt := range tests {
		got, err := coerceLinkID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("coerceLinkID(%#v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("coerceLinkID(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
