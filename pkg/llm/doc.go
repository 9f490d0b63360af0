// Package llm puts hosted text generation behind one narrow interface.
//
// Invariants:
// - Providers hold only a client handle; retry, metrics, and tracing live in Client.
// - Structured calls strip markdown code fences before decoding.
// - Strict schemas are enforced with gojsonschema; failures surface as
//   *StructuredError carrying the raw model text.
//
// Usage:
//
//	client, _ := llm.NewClient(llm.Config{
//		Provider: "openai",
//		Model:    "gpt-4o-mini",
//		APIKey:   key,
//	}, prompts.NewLibrary())
//	text, _ := client.Generate(ctx, "say hi")
//	_ = text
package llm
