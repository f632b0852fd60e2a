// Package components turns layout nodes into render-time component
// instances. Every layout kind maps onto a closed set of variants sharing the
// Component capability interface; kinds the runtime does not know become the
// opaque variant. Instances carry resolved bindings, visibility, options and
// validation messages for one repetition context of a node.
package components
