package model

// Channel identifies a message transport.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelVoice    Channel = "voice"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelVoice:
		return true
	}
	return false
}

// MessageType enumerates the dispatchable message and call kinds.
type MessageType string

const (
	MessageTypeInvite              MessageType = "invite"
	MessageTypeReminder            MessageType = "reminder"
	MessageTypeInteractiveInvite   MessageType = "interactive_invite"
	MessageTypeInteractiveReminder MessageType = "interactive_reminder"
	MessageTypeCall                MessageType = "call"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeInvite, MessageTypeReminder, MessageTypeInteractiveInvite,
		MessageTypeInteractiveReminder, MessageTypeCall:
		return true
	}
	return false
}

// IsCall reports whether the type goes through the voice provider.
func (t MessageType) IsCall() bool {
	return t == MessageTypeCall
}
