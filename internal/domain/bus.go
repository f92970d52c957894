package domain

// AgentBus decouples the agent side (which produces events) from the relay
// service (which consumes them). One subscriber; publishers may be many.
type AgentBus interface {
	Publish(evt AgentEvent)
	Subscribe() <-chan AgentEvent
	Close()
}

// InboundSink receives user messages captured by transports.
type InboundSink interface {
	PublishInbound(msg InboundMessage)
}
