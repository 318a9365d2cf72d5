package gateway

import "github.com/rmax-ai/linkgate/pkg/links"

// Link is the response record for a stored doublet.
type Link[T links.ID] struct {
	ID     T `json:"id"`
	FromID T `json:"from_id"`
	ToID   T `json:"to_id"`
}

// InputLink is one requested association.
type InputLink[T links.ID] struct {
	FromID T `json:"from_id"`
	ToID   T `json:"to_id"`
}

// Gateway bundles the two resolvers over one handle.
type Gateway[T links.ID] struct {
	Query    *Query[T]
	Mutation *Mutation[T]
}

// New builds a handle over engine and both resolvers sharing it.
func New[T links.ID](engine links.Engine[T]) *Gateway[T] {
	h := NewHandle(engine)
	return &Gateway[T]{
		Query:    NewQuery(h),
		Mutation: NewMutation(h),
	}
}
