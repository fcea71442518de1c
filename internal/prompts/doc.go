// Package prompts contains the prompt text Hearth sends to the model.
//
// Prompt text is Go code rather than config files because it is program
// logic: the orchestrator's parser depends on the response shape the
// system prompt asks for, and tests pin the two together.
//
// Convention: each prompt category gets its own file (system.go,
// actions.go) with an exported function that accepts the dynamic parts
// and returns the fully interpolated prompt string.
package prompts
