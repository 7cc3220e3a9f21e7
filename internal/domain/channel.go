package domain

// Channel is a delivery channel a notification can be routed to.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Channels lists every supported channel in routing order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// EventType classifies a submitted notification event.
type EventType string

const (
	EventAccount   EventType = "account"
	EventSecurity  EventType = "security"
	EventMarketing EventType = "marketing"
	EventSystem    EventType = "system"
)

func (t EventType) Valid() bool {
	switch t {
	case EventAccount, EventSecurity, EventMarketing, EventSystem:
		return true
	}
	return false
}

// Priority orders events inside a channel; it does not affect routing.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
