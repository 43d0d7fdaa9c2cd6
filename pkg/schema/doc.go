// Package schema provides the semantic type system used to declare workflow
// state.
//
// A workflow declares its state as an ordered list of fields, each with a
// type name such as "str", "List[int]" or "Union[str, None]". Type names are
// resolved once, when the workflow is compiled, into a Schema: a field
// descriptor table consulted by plain type switches at run time.
//
//	s, err := schema.New(
//	    schema.Field{Name: "count", Type: schema.Int()},
//	    schema.Field{Name: "tags", Type: schema.List(schema.String())},
//	)
//
//	state := s.Defaults() // {"count": 0, "tags": []}
//	if err := schema.Validate(s, state); err != nil {
//	    // Handle validation errors
//	}
//
// Type names can also be parsed directly:
//
//	t, err := schema.ParseType("Dict[str, List[int]]")
//
// A Registry adds named type aliases and state bundles (groups of fields a
// template can include by name, like "HilpState").
package schema
