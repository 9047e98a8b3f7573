// Package generation defines the ports through which the pipeline talks to an
// external text-generation service: summarizing an email, drafting a reply
// and refining a draft from reviewer feedback over a multi-turn session.
//
// The schedulers depend only on the Summarizer, Drafter and Refiner
// interfaces. Concrete adapters (Gemini, OpenAI, Anthropic) share the retry
// and conversation layer in internal/platform/llm, and an offline echo
// implementation lives in internal/platform/echo.
package generation
