package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// one-hour cache breakpoint. Every section extraction shares the same system
// prompt, so repeated calls read it from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}
