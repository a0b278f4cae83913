package program

import (
	"fmt"
	"log/slog"

	"github.com/kadirpekel/playbooks/pkg/checkpoint"
	"github.com/kadirpekel/playbooks/pkg/dispatch"
	"github.com/kadirpekel/playbooks/pkg/pbasm"
)

// RunConfig bundles everything CreateRun needs beyond the program
// source and session id: the checkpoint provider (nil disables
// durability), the session manager used to resolve/persist the
// path-to-session mapping (nil skips that mapping, e.g. for
// programContent runs with no stable path set), the per-agent LLM
// caller factory, and dispatch tuning.
type RunConfig struct {
	CheckpointProvider checkpoint.Provider
	SessionManager     *checkpoint.SessionManager
	LLMFactory         LLMCallerFactory
	Dispatch           dispatch.Config
}

// CreateRun is the core's minimal lifecycle entry point (spec.md §6,
// SPEC_FULL.md §8): "program.create_run(playbooks_path | program_content,
// session_id?) -> run_id". It loads a compiled program from either a
// set of PBASM file paths or raw PBASM text, resolves a session id
// (the caller's, or the last one recorded for these paths, or a fresh
// content-derived one), constructs the live Program, and returns both
// alongside the resolved run id. Exactly one of playbooksPath or
// programContent must be non-empty.
//
// Everything this does was previously inlined in cmd/playbooks/run.go,
// a CLI host that spec.md §1 places outside the core; CreateRun moves
// those steps into pkg/program so any host (CLI, HTTP, test harness)
// can start a run without reimplementing load+session-resolve+construct
// itself.
func CreateRun(playbooksPath []string, programContent string, sessionID string, cfg RunConfig) (*Program, string, error) {
	compiled, err := loadRunSource(playbooksPath, programContent)
	if err != nil {
		return nil, "", err
	}

	sessionID = resolveRunSessionID(playbooksPath, programContent, sessionID, cfg.SessionManager)

	p, err := NewProgram(sessionID, compiled, cfg.CheckpointProvider, cfg.LLMFactory, cfg.Dispatch)
	if err != nil {
		return nil, "", err
	}
	return p, sessionID, nil
}

func loadRunSource(playbooksPath []string, programContent string) (*pbasm.Program, error) {
	switch {
	case len(playbooksPath) > 0 && programContent != "":
		return nil, &ProgramLoadError{Reason: "create_run: give either playbooksPath or programContent, not both"}
	case len(playbooksPath) > 0:
		compiled, err := pbasm.Load(playbooksPath)
		if err != nil {
			return nil, fmt.Errorf("create_run: load program: %w", err)
		}
		return compiled, nil
	case programContent != "":
		compiled, err := pbasm.Parse(programContent)
		if err != nil {
			return nil, fmt.Errorf("create_run: parse program: %w", err)
		}
		return compiled, nil
	default:
		return nil, &ProgramLoadError{Reason: "create_run: no playbooksPath or programContent given"}
	}
}

// resolveRunSessionID picks the session id a run continues under: the
// caller's explicit choice first, then (for path-based runs) the last
// session recorded for these exact paths, then a fresh key derived
// from the source itself. It persists the resolved mapping for
// path-based runs so a later CreateRun with the same paths and no
// explicit session id resumes this one. A save failure is not fatal —
// the run proceeds under the resolved id either way, matching the
// CLI's own "warn and continue" handling of the same case.
func resolveRunSessionID(playbooksPath []string, programContent string, sessionID string, sessions *checkpoint.SessionManager) string {
	if sessionID != "" {
		return sessionID
	}
	if sessions != nil && len(playbooksPath) > 0 {
		if last, ok := sessions.LastSession(playbooksPath); ok {
			return last
		}
	}
	if len(playbooksPath) > 0 {
		sessionID = checkpoint.ExecutionKey(playbooksPath)
	} else {
		sessionID = checkpoint.ExecutionKey([]string{programContent})
	}
	if sessions != nil && len(playbooksPath) > 0 {
		if err := sessions.SaveSession(playbooksPath, sessionID); err != nil {
			slog.Warn("create_run: could not persist session mapping", "error", err)
		}
	}
	return sessionID
}
