// Package query turns subscribe requests into an event filter and a
// projection.
//
// Documents are parsed and validated against the embedded riverql schema with
// github.com/vektah/gqlparser/v2. Parse then walks the single events field:
// its types argument (inline, through a variable, or from a variable default)
// becomes a [river.KindSet], and its selection, including inline fragments
// and named fragments per event variant, becomes the projection applied to
// each delivered event.
package query
