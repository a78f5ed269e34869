package tracing

// Span attribute keys.
const (
	AttrNamespaceKey  = "namespace.key"
	AttrNamespaceType = "namespace.type"
	AttrActionType    = "action.type"
	AttrLifecycle     = "action.lifecycle"
	AttrDeferred      = "action.deferred"
)

// Span name prefixes.
const (
	SpanPrefixDispatch = "action.dispatch."
	SpanPrefixStage    = "action.stage."
)

// Span event names.
const (
	EventActionRejected = "action.rejected"
)
