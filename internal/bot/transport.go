// Package bot adapts chat transports to the executor workflows: it owns
// the command grammar, the per-transport dispatcher and the reply
// formatting. Transports themselves (IRC, Discord) live outside this
// module and only have to satisfy the Transport contract.
package bot

// Event is one inbound chat message as the transports deliver it.
type Event struct {
	// From is the speaker identifier, used for the ignore list.
	From string
	// Target is where a reply should go for public messages.
	Target string
	// Text is the raw message body.
	Text string
	// Private marks direct messages; replies go back to From.
	Private bool
}

// replyTarget picks where the response line is sent.
func (ev Event) replyTarget() string {
	if ev.Private {
		return ev.From
	}
	return ev.Target
}

// Transport is the boundary contract a chat shim implements. Events
// must stay open until Close; Send must be safe to call from the
// dispatcher goroutine at any time.
type Transport interface {
	// Name identifies the transport in logs.
	Name() string
	// Events yields inbound messages. Closing the channel stops the
	// dispatcher serving this transport.
	Events() <-chan Event
	// Send delivers one reply line to the target.
	Send(target, text string)
}
