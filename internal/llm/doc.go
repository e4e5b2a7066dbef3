// Package llm provides the model gateway used by the story pipeline.
//
// A Gateway takes a system prompt plus one or more user turns and returns the
// generated text. Implementations exist for:
//   - Ollama (local, default) through langchaingo
//   - OpenAI and Groq through the OpenAI-compatible chat completions API
//   - Anthropic through the Messages API
//
// # Usage
//
//	gw, err := llm.NewGateway(llm.Config{Provider: "ollama"}, logger)
//	if err != nil {
//	    return err
//	}
//	text, err := gw.Generate(ctx, "You are a requirements analyst.", docText)
//
// The HTTP clients rate limit and retry transient failures (429, 5xx,
// transport errors) with exponential backoff. Callers that need a hard bound
// on a single call wrap the gateway with Bounded.
package llm
