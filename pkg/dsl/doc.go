/*
Package dsl provides a Go DSL for building Arbor workflow graphs in code.

A Builder collects state fields and nodes through a fluent API and
assembles them with the same validation a compiled template gets: node
kinds, transition targets, conditions and intervene points. The result is a
*domain.Graph, and the Builder itself satisfies domain.GraphBuilder.

Example usage:

	b := dsl.New("greeter").
		Bundle("State").
		Field("name", schema.String())

	b.Add("ask").
		Prompt("What should I call you?").
		Sink("name").
		Intervene().
		Go("greet")

	b.Add("greet").
		Prompt("Say hello to {name}").
		Sink("output").
		Branch("len(name) > 0", "END", "ask")

	wf, err := arbor.New(b)
*/
package dsl
