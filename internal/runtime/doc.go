/*
Package runtime implements the Cascade execution engine.

It resolves variables into prompts, drives the generation provider through
question interrupts, turns structured responses into new tree nodes and walks
whole subtrees depth-first. The package depends only on pkg/domain and
pkg/ports; concrete stores, providers and operator interfaces are injected.
*/
package runtime
