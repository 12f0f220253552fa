package triplestore

import (
	"fmt"
	"sort"
)

// Quad is a subject-predicate-object statement, optionally placed in a
// named context. An empty Context is the default graph.
type Quad struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Context   string `json:"context,omitempty"`
}

// Validate checks that the statement has all three terms.
func (q Quad) Validate() error {
	switch {
	case q.Subject == "":
		return fmt.Errorf("statement subject is required")
	case q.Predicate == "":
		return fmt.Errorf("statement predicate is required")
	case q.Object == "":
		return fmt.Errorf("statement object is required")
	}
	return nil
}

// String renders the statement in an N-Quads like form for display.
func (q Quad) String() string {
	if q.Context == "" {
		return fmt.Sprintf("%s %s %s .", q.Subject, q.Predicate, q.Object)
	}
	return fmt.Sprintf("%s %s %s %s .", q.Subject, q.Predicate, q.Object, q.Context)
}

// Pattern selects statements. Empty fields match anything.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
	Context   string
}

// Matches reports whether q satisfies the pattern.
func (p Pattern) Matches(q Quad) bool {
	return (p.Subject == "" || p.Subject == q.Subject) &&
		(p.Predicate == "" || p.Predicate == q.Predicate) &&
		(p.Object == "" || p.Object == q.Object) &&
		(p.Context == "" || p.Context == q.Context)
}

// SortQuads orders quads by context, subject, predicate and object, the order
// Storage.Match promises.
func SortQuads(quads []Quad) {
	sort.Slice(quads, func(i, j int) bool {
		a, b := quads[i], quads[j]
		if a.Context != b.Context {
			return a.Context < b.Context
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}
		return a.Object < b.Object
	})
}
