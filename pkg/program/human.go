package program

import (
	"github.com/kadirpekel/playbooks/pkg/messaging"
	"github.com/kadirpekel/playbooks/pkg/promptbuilder"
)

// HumanAgent is a message sink: it never runs the interpreter.
// Deliver() is a no-op beyond queuing into its own inbox — an external
// host (CLI, HTTP, UI) is the thing that actually surfaces messages and
// streams to a person, by subscribing to the channel's message/stream
// observers.
type HumanAgent struct {
	id          string
	klass       string
	description string

	// Name is shown to peers and is matched against for "targeted"
	// meeting-notification delivery.
	Name        string
	Preferences messaging.DeliveryPreferences

	// Inbox holds delivered messages for a host to drain; the core
	// itself never reads from it.
	Inbox *messaging.AsyncMessageQueue
}

// NewHumanAgent returns a human participant with default delivery
// preferences unless overridden by the caller.
func NewHumanAgent(id, klass, description string) *HumanAgent {
	prefs := messaging.DefaultDeliveryPreferences()
	prefs.Name = klass
	return &HumanAgent{
		id:          id,
		klass:       klass,
		description: description,
		Name:        klass,
		Preferences: prefs,
		Inbox:       messaging.NewAsyncMessageQueue(),
	}
}

func (h *HumanAgent) ID() string { return h.id }

// Deliver queues msg into the human's inbox; a closed inbox simply
// drops the message.
func (h *HumanAgent) Deliver(msg *messaging.Message) {
	_ = h.Inbox.Put(msg, false)
}

func (h *HumanAgent) Klass() string       { return h.klass }
func (h *HumanAgent) Kind() Kind          { return KindHuman }
func (h *HumanAgent) Description() string { return h.description }

// Playbooks is empty: humans expose no callable surface to peers.
func (h *HumanAgent) Playbooks() []promptbuilder.PlaybookSignature { return nil }

// DeliveryPrefs implements messaging.HumanParticipant, letting meeting
// broadcast consult this human's streaming preferences without
// pkg/messaging importing this package.
func (h *HumanAgent) DeliveryPrefs() messaging.DeliveryPreferences { return h.Preferences }
