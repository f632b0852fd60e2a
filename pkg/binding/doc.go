// Package binding converts form documents between their nested JSON shape and
// the flat representation the runtime edits, where each scalar lives under a
// path such as "applicant.pets[1].name".
//
// Object members are joined with "." and array entries use "[i]". Empty
// containers and nulls carry no keys, so they disappear after a round trip.
// Unflatten rebuilds arrays only when indices run contiguously from zero;
// anything else is reported through MalformedPathError instead of being
// repaired.
//
// Resolve and ResolveInGroups turn binding templates declared inside
// repeating groups into concrete paths for one repetition.
package binding
