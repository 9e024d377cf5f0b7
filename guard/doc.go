// Package guard provides a three-stage safety pipeline used by the Prompt
// Pipeline's moderation stage. It validates content at three points: input
// (the raw prompt text), output (model responses, e.g. generated lyrics),
// and tool (reserved for future structured calls). Each stage runs a
// configurable set of Guard implementations that can block, modify, or
// allow content to pass through.
//
// # Guard Interface
//
// The core Guard interface requires two methods:
//
//   - Name returns a unique identifier for the guard.
//   - Validate checks content and returns a GuardResult indicating whether
//     the content is allowed, along with an optional modified version.
//
// # Built-in Guards
//
// The package ships with two local, LLM-free guards and composes with an
// LLM-backed guard (see package promptpipeline):
//
//   - PromptInjectionDetector detects common prompt injection patterns
//     using configurable regular expressions.
//   - ContentFilter performs keyword-based content moderation with a
//     configurable match threshold.
//
// # Pipeline
//
// Guards are composed into a Pipeline using the Input, Output, and Tool
// stage options. The Pipeline runs guards sequentially within each stage;
// the first guard that blocks stops the pipeline for that stage. Modified
// content from one guard is passed to subsequent guards.
//
// # Registry
//
// The package follows a standard registry pattern with Register, New, and
// List functions. Built-in guards register themselves via init.
//
// # Usage
//
// Create a pipeline with input guards:
//
//	p := guard.NewPipeline(
//	    guard.Input(guard.NewPromptInjectionDetector()),
//	    guard.Input(guard.NewContentFilter(guard.WithKeywords("drop", "delete"))),
//	)
//	result, err := p.ValidateInput(ctx, promptText)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Allowed {
//	    fmt.Println("blocked:", result.Reason)
//	}
//
// Use the registry to create guards by name:
//
//	g, err := guard.New("prompt_injection_detector", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := g.Validate(ctx, guard.GuardInput{Content: text, Role: "input"})
package guard
