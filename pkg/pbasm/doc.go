// Package pbasm reads the compiled program format the core consumes:
// an optional YAML front-matter block followed by one or more
// `# AgentClass:Kind` sections, each listing
// `## PlaybookName(args) -> ReturnType` entries with triggers, step
// instructions, and an optional fenced Python code body. Compiling
// `.pb` source into PBASM is out of scope; this package only parses
// the already-compiled text.
package pbasm
