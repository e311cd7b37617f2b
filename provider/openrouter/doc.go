// Package openrouter implements the provider interface on top of the
// OpenRouter chat-completions API, which serves many models behind one
// OpenAI-compatible endpoint. It also maintains the model catalog the
// UI picks participants from.
package openrouter
