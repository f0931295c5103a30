/*
Package dsl builds prompt trees in Go instead of YAML or JSON.

It is handy for tests and for trees generated by code:

	b := dsl.New()
	course := b.Add("course").Prompt("Outline a course on {{topic}}").JSON()
	course.Child("modules").
		Prompt("List the modules of {{course}} as JSON").
		CreateChildren("modules").
		AutoRun()
	course.Child("level").Prompt("Pick a level for {{course}}").Question()

	store, err := b.Build()
*/
package dsl
