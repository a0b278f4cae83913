package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/pbasm"
	"github.com/kadirpekel/playbooks/pkg/program"
)

func compiledWithHuman() *pbasm.Program {
	return &pbasm.Program{
		Agents: []pbasm.AgentKlass{
			{Name: "Greeter", Kind: pbasm.KindAI, Playbooks: []pbasm.Playbook{
				{Name: "SayHi", Triggers: []string{"hi"}, Steps: "Say hello."},
			}},
			{Name: "Operator", Kind: pbasm.KindHuman},
		},
	}
}

func compiledWithoutHuman() *pbasm.Program {
	return &pbasm.Program{
		Agents: []pbasm.AgentKlass{
			{Name: "Greeter", Kind: pbasm.KindAI, Playbooks: []pbasm.Playbook{
				{Name: "SayHi", Triggers: []string{"hi"}, Steps: "Say hello."},
			}},
		},
	}
}

func TestFirstHumanIDPrefersDeclaredHumanClass(t *testing.T) {
	compiled := compiledWithHuman()
	prog, err := program.NewProgram("sess", compiled, nil, nil, dispatch.Config{})
	require.NoError(t, err)

	id, ok := firstHumanID(prog, compiled)
	require.True(t, ok)
	wantID, ok := prog.ResolveKlassID("Operator")
	require.True(t, ok)
	assert.Equal(t, wantID, id)
}

func TestFirstHumanIDFallsBackToDefaultUser(t *testing.T) {
	compiled := compiledWithoutHuman()
	prog, err := program.NewProgram("sess", compiled, nil, nil, dispatch.Config{})
	require.NoError(t, err)

	id, ok := firstHumanID(prog, compiled)
	require.True(t, ok)
	wantID, ok := prog.ResolveKlassID("User")
	require.True(t, ok)
	assert.Equal(t, wantID, id)
}
