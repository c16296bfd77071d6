// Package llm provides text completion clients used as the last-resort receipt parser.
// It supports OpenAI, Anthropic, Gemini and the Claude Code CLI, with retry logic,
// rate limiting, and response caching layered on top by Completer.
package llm
