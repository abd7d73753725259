// Package engine evaluates rewritten queries with an in-memory SQLite
// database.
//
// Each evaluation loads the rows of the query's data elements into
// temporary tables, compiles the remaining pattern (BIND, FILTER and
// nested groups) together with the projection, DISTINCT, OFFSET and LIMIT
// into one parameterized SELECT statement, and decodes the result columns
// back into RDF terms. Every expression has a static type, so the decoder
// knows which term to build from each column. Expressions that would raise
// a type error evaluate to SQL NULL and leave their variable unbound.
package engine
