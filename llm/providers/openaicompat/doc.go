// Package openaicompat implements llm.Provider for the OpenAI Chat Completions
// protocol, including multimodal image_url content parts.
//
// Usage:
//
//	p, err := openaicompat.New(openaicompat.Config{
//	    APIKey:       cfg.LLM.APIKey,
//	    DefaultModel: "gpt-4o-mini",
//	    MaxRetries:   2,
//	}, logger)
package openaicompat
