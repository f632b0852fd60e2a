// Package visibility decides whether layout nodes are shown. Rules are
// expressions over the flat form document (see the expr sub package); index
// placeholders and group-relative bindings are resolved against the
// repetitions enclosing the node before evaluation.
package visibility
