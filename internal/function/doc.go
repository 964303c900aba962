// Package function exposes kernel functions to front-end elements.
//
// Every exposed function carries a precomputed list of Param descriptors.
// From those the package derives the signature descriptor sent to the
// browser, and converts the untyped (mostly string) arguments the browser
// sends back into the types the function expects.
//
// Type inference for a parameter follows a fixed order: the dynamic type of
// its default value when it has one, otherwise its declared type, otherwise
// it is untyped ("NoneType").
package function
