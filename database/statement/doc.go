// Package statement builds prepared statements from SQL text and typed
// parameters. Parameters are given positionally (NewIndexed) or by name
// (NewNamed) together with their declared SQL type. Nil values bind as the
// typed null of that type; other values pass through an ordered list of
// converters where the first match wins and unmatched values bind unchanged.
//
// SQL is written with '?' (indexed) or ':name' (named) markers and rewritten
// to the driver's placeholder style with squirrel placeholder formats.
package statement
