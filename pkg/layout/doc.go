// Package layout turns layout resources into page trees. It selects the layout
// set for the current process task, normalizes component type names against
// a case-insensitive kind registry, folds flat component lists into groups and
// picks the page to open first (the last visited page when it still exists).
package layout
