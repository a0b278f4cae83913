package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/playbooks/pkg/callstack"
	"github.com/kadirpekel/playbooks/pkg/checkpoint"
	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/llms"
	"github.com/kadirpekel/playbooks/pkg/messaging"
	"github.com/kadirpekel/playbooks/pkg/pbasm"
	"github.com/kadirpekel/playbooks/pkg/program"
)

// RunCmd loads and runs one compiled program, adapted from the
// teacher's cmd/hector ServeCmd (zero-config flag surface, default-on
// durability) but driving a terminal session instead of an HTTP server,
// since the core's only produced transport is the event bus and channel
// observers (spec §6), not a server protocol.
type RunCmd struct {
	Paths []string `arg:"" help:"Compiled PBASM file paths." type:"path"`

	SessionID       string `help:"Session id. Defaults to resuming the last session for these paths, or a fresh one."`
	CheckpointDir   string `help:"Checkpoint base directory." default:".playbooks-checkpoints" type:"path"`
	NoCheckpoint    bool   `help:"Disable durable checkpointing." name:"no-checkpoint"`
	CheckpointKeep  int    `help:"Checkpoints retained per agent." default:"10"`
	CheckpointMaxMB int    `help:"Max size (MB) of one checkpoint." default:"8"`

	Provider    string  `help:"LLM provider." default:"anthropic" enum:"anthropic"`
	Model       string  `help:"Model name." default:"claude-sonnet-4-5"`
	APIKey      string  `name:"api-key" help:"API key (defaults to ANTHROPIC_API_KEY)."`
	Temperature float64 `help:"Sampling temperature." default:"0.7"`
	MaxTokens   int64   `name:"max-tokens" help:"Max tokens per completion." default:"4096"`

	IFrameInterval int `name:"iframe-interval" help:"LLM calls between full-state (I-frame) snapshots." default:"5"`

	ArtifactThreshold int `help:"Byte threshold above which a value is auto-artifacted." default:"80"`

	AgentClass string `help:"AI agent class stdin lines are sent to. Defaults to the first declared AI class."`

	Watch bool `help:"Watch the PBASM sources and report edits (and parse breakage) while the session runs."`
}

func (c *RunCmd) Run() error {
	log := slog.Default()

	sessions := checkpoint.NewSessionManager(c.CheckpointDir)

	var provider checkpoint.Provider
	if !c.NoCheckpoint {
		fsProvider, err := checkpoint.NewFilesystemProvider(c.CheckpointDir, c.CheckpointMaxMB)
		if err != nil {
			return fmt.Errorf("checkpoint provider: %w", err)
		}
		provider = fsProvider
	}

	if c.APIKey == "" {
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	llmProvider := llms.NewAnthropicProvider(llms.AnthropicConfig{
		APIKey:      c.APIKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})

	compression := callstack.CompressionConfig{Enabled: true, Interval: c.IFrameInterval}
	dispatchCfg := dispatch.Config{
		ArtifactResultThreshold: c.ArtifactThreshold,
		VariableThreshold:       c.ArtifactThreshold,
		Compression:             compression,
	}

	factory := func(p *program.Program, agentID, agentKlass string) dispatch.LLMCaller {
		return llms.NewCaller(llmProvider, p, agentID, compression)
	}
	prog, sessionID, err := program.CreateRun(c.Paths, "", c.SessionID, program.RunConfig{
		CheckpointProvider: provider,
		SessionManager:     sessions,
		LLMFactory:         factory,
		Dispatch:           dispatchCfg,
	})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if c.SessionID == "" {
		log.Info("resolved session", "session_id", sessionID)
	}

	compiled := prog.Compiled

	agentClass := c.AgentClass
	if agentClass == "" {
		for _, k := range compiled.Agents {
			if k.Kind == pbasm.KindAI {
				agentClass = k.Name
				break
			}
		}
	}
	aiID, ok := prog.ResolveKlassID(agentClass)
	if !ok {
		return fmt.Errorf("no live agent of class %q", agentClass)
	}
	humanID, ok := firstHumanID(prog, compiled)
	if !ok {
		return errors.New("program declared no human participant")
	}

	channel, err := prog.Router.Channel(humanID, aiID)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	channel.AddStreamObserver(messaging.StreamObserver{
		Notify: func(ev messaging.StreamEvent) {
			switch ev.Kind {
			case "chunk":
				fmt.Print(ev.Chunk)
			case "complete":
				fmt.Println()
			}
		},
	})
	channel.AddMessageObserver(func(msg *messaging.Message, senderID string) {
		if senderID == humanID {
			return
		}
		fmt.Printf("\n[%s] %s\n", senderID, msg.Text())
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if provider != nil {
		result, err := prog.Restore(ctx)
		switch {
		case err != nil:
			log.Warn("could not restore prior session state", "error", err)
		case result != nil:
			log.Info("restored session state", "restored", result.Restored, "recorded", result.Total)
		}
	}

	if c.Watch {
		watcher, err := pbasm.Watch(ctx, c.Paths, func(changed string, _ *pbasm.Program, parseErr error) {
			if parseErr != nil {
				log.Error("playbook source changed but no longer parses", "path", changed, "error", parseErr)
				return
			}
			log.Warn("playbook source changed; restart the session to pick it up", "path", changed)
		})
		if err != nil {
			return fmt.Errorf("watch playbook sources: %w", err)
		}
		defer watcher.Close()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- prog.Begin(ctx) }()

	fmt.Printf("playbooks: session %s, talking to %s (%s)\n", sessionID, agentClass, aiID)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := prog.RouteMessage(humanID, aiID, line, ""); err != nil {
			log.Error("route message", "error", err)
		}
		select {
		case err := <-errCh:
			return reportProgramExit(err)
		default:
		}
	}

	cancel()
	return reportProgramExit(<-errCh)
}

func reportProgramExit(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// firstHumanID finds the live id of the program's first declared Human
// class, falling back to the implicit default "User" class
// (spec §4.6 "no default User created when any Human agent is
// declared").
func firstHumanID(p *program.Program, compiled *pbasm.Program) (string, bool) {
	for _, k := range compiled.Agents {
		if k.Kind == pbasm.KindHuman {
			return p.ResolveKlassID(k.Name)
		}
	}
	return p.ResolveKlassID("User")
}
