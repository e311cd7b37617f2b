// Package provider defines the interface to upstream completion
// providers. A provider accepts a model identifier and an ordered message
// list, and delivers the model's answer as a stream of text deltas over a
// channel. Implementations live in subpackages (openrouter).
package provider
