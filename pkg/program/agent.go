package program

import (
	"github.com/kadirpekel/playbooks/pkg/messaging"
	"github.com/kadirpekel/playbooks/pkg/promptbuilder"
)

// Kind distinguishes the three agent kinds a program can host.
type Kind string

const (
	KindAI    Kind = "AI"
	KindHuman Kind = "Human"
	KindMCP   Kind = "MCP"
)

// Agent is the discovery surface every live agent exposes, on top of
// messaging.Participant's ID()/Deliver() — what other agents see when
// they describe peers in a prompt.
type Agent interface {
	messaging.Participant
	Klass() string
	Kind() Kind
	Description() string
	Playbooks() []promptbuilder.PlaybookSignature
}
