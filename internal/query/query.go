package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/typester/riverql/internal/river"
	"github.com/typester/riverql/schema"
)

// RootField is the only subscription field.
const RootField = "events"

// unionType is the name of the union every variant belongs to.
const unionType = "RiverEvent"

// typesArgument is the filter argument of the root field.
const typesArgument = "types"

// riverSchema is the embedded SDL every document is validated against.
var riverSchema = gqlparser.MustLoadSchema(&ast.Source{
	Name:  "schema.graphql",
	Input: string(schema.SDL),
})

type selection struct {
	key  string // response key: alias or field name
	name string
}

// Subscription is a parsed subscribe request.
type Subscription struct {
	// Name is the operation name, empty for anonymous operations.
	Name string

	// Field is the response key of the root field, "events" unless aliased.
	Field string

	// Filter holds the kinds named by the types argument. Empty accepts all.
	Filter river.KindSet

	common    []selection
	fragments map[river.Kind][]selection
}

// Project renders ev with only the selected fields.
func (s *Subscription) Project(ev river.Event) map[string]any {
	payload := river.Payload(ev)

	out := make(map[string]any)
	for _, list := range [][]selection{s.common, s.fragments[ev.Kind()]} {
		for _, sel := range list {
			if v, ok := payload[sel.name]; ok {
				out[sel.key] = v
			}
		}
	}
	return out
}

// Parse turns a subscription document into a [Subscription].
//
// The document is validated against the riverql schema. It must hold one
// subscription operation selecting the events field, optionally filtered by
// a types argument given inline or through a variable:
//
//	subscription Watch($types: [RiverEventType!]) {
//	  events(types: $types) {
//	    __typename
//	    ... on OutputFocusedTags { name tags }
//	  }
//	}
func Parse(src string, variables map[string]any) (*Subscription, error) {
	doc, perr := parser.ParseQuery(&ast.Source{Name: "subscription", Input: src})
	if perr != nil {
		return nil, fmt.Errorf("syntax error: %w", perr)
	}
	if errs := validator.Validate(riverSchema, doc); len(errs) > 0 {
		return nil, listError(errs)
	}

	if len(doc.Operations) != 1 {
		return nil, errors.New("a document must contain exactly one subscription operation")
	}
	op := doc.Operations[0]
	if op.Operation != ast.Subscription {
		return nil, fmt.Errorf("%s operations are not supported; use a subscription", op.Operation)
	}
	if len(op.Directives) > 0 {
		return nil, errors.New("directives are not supported")
	}

	vars, verr := validator.VariableValues(riverSchema, op, variables)
	if verr != nil {
		return nil, fmt.Errorf("variables: %w", verr)
	}

	if len(op.SelectionSet) != 1 {
		return nil, errors.New("a subscription must select exactly one field")
	}
	root, ok := op.SelectionSet[0].(*ast.Field)
	if !ok || root.Name != RootField {
		return nil, errors.New("a subscription must select the events field")
	}
	if len(root.Directives) > 0 {
		return nil, errors.New("directives are not supported")
	}

	kinds, err := kindsFromValue(root.ArgumentMap(vars)[typesArgument])
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", typesArgument, err)
	}

	sub := &Subscription{
		Name:   op.Name,
		Field:  root.Alias,
		Filter: river.NewKindSet(kinds...),
	}
	if err := sub.collect(root.SelectionSet, ""); err != nil {
		return nil, err
	}
	return sub, nil
}

// collect records the fields of set. on is the variant the set applies to,
// empty for the union itself.
func (s *Subscription) collect(set ast.SelectionSet, on river.Kind) error {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			if len(sel.Directives) > 0 {
				return errors.New("directives are not supported")
			}
			s.add(on, selection{key: sel.Alias, name: sel.Name})
		case *ast.InlineFragment:
			if len(sel.Directives) > 0 {
				return errors.New("directives are not supported")
			}
			kind, err := fragmentKind(sel.TypeCondition, on)
			if err != nil {
				return err
			}
			if err := s.collect(sel.SelectionSet, kind); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if len(sel.Directives) > 0 || sel.Definition == nil || len(sel.Definition.Directives) > 0 {
				return errors.New("directives are not supported")
			}
			kind, err := fragmentKind(sel.Definition.TypeCondition, on)
			if err != nil {
				return err
			}
			if err := s.collect(sel.Definition.SelectionSet, kind); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Subscription) add(on river.Kind, sel selection) {
	if on == "" {
		s.common = append(s.common, sel)
		return
	}
	if s.fragments == nil {
		s.fragments = make(map[river.Kind][]selection)
	}
	s.fragments[on] = append(s.fragments[on], sel)
}

// fragmentKind resolves a type condition. The union and an absent condition
// keep the enclosing variant.
func fragmentKind(typ string, outer river.Kind) (river.Kind, error) {
	if typ == "" || typ == unionType {
		return outer, nil
	}
	k, err := river.ParseKind(typ)
	if err != nil {
		return "", fmt.Errorf("fragment on %s does not match an event variant", typ)
	}
	return k, nil
}

func listError(errs gqlerror.List) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return errors.New(strings.Join(msgs, "; "))
}

// kindsFromValue converts a coerced types argument. Null and the empty list
// both mean every kind.
func kindsFromValue(v any) ([]river.Kind, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		k, err := kindFromEnum(v)
		if err != nil {
			return nil, err
		}
		return []river.Kind{k}, nil
	case []any:
		kinds := make([]river.Kind, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected enum value, found %v", item)
			}
			k, err := kindFromEnum(s)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
		return kinds, nil
	}
	return nil, fmt.Errorf("expected a list of event types, found %v", v)
}

func kindFromEnum(s string) (river.Kind, error) {
	for _, k := range river.Kinds {
		if EnumValue(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// EnumValue returns the GraphQL enum spelling of k, e.g. SEAT_MODE.
func EnumValue(k river.Kind) string {
	var b strings.Builder
	for i, r := range string(k) {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
