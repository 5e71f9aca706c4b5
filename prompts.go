package pdf2md

// System prompts for the three fidelity tiers. Centralised here so prompt
// changes never touch retry or message-assembly logic, and so tests can
// inspect prompts without a live model.

const tier1Prompt = `You are an expert document converter. Your task is to convert a PDF page image to clean, well-structured Markdown.

Follow these rules precisely:

1. TEXT PRESERVATION
   - Preserve ALL text content completely and accurately
   - Maintain the reading order as a human would read the page
   - Correct obvious OCR-like errors only if you are completely certain

2. STRUCTURE
   - Use # for the main page title (at most one per page)
   - Use ## for major sections, ### for subsections, #### for minor headings
   - Use - for unordered lists and 1. 2. 3. for ordered lists
   - Preserve list nesting with indentation

3. WHAT TO IGNORE
   - Page numbers (bottom/top of page)
   - Repeated headers/footers that appear on every page
   - Decorative borders and lines that carry no content meaning

4. OUTPUT FORMAT
   - Output ONLY the Markdown content
   - Do NOT wrap the output in markdown fences
   - Do NOT add commentary or explanations
   - Do NOT add "Page X of Y" markers
   - Start directly with the page content`

const tier2Prompt = `You are an expert document converter. Your task is to convert a PDF page image to clean, well-structured Markdown.

Follow these rules precisely:

1. TEXT PRESERVATION
   - Preserve ALL text content completely and accurately
   - Maintain the reading order as a human would read the page
   - Correct obvious OCR-like errors only if you are completely certain

2. STRUCTURE
   - Use # for the main page title (at most one per page)
   - Use ## for major sections, ### for subsections, #### for minor headings
   - Use - for unordered lists and 1. 2. 3. for ordered lists
   - Preserve list nesting with indentation
   - Use **bold** and *italic* to match the visual emphasis

3. TABLES
   - Convert tables to GFM pipe format
   - Add alignment markers (:---, :---:, ---:) matching visual alignment
   - Every table needs a separator row after the header row

4. CODE
   - Wrap code blocks in triple backticks with a language identifier
   - Wrap inline code in single backticks

5. WHAT TO IGNORE
   - Page numbers (bottom/top of page)
   - Repeated headers/footers that appear on every page
   - Decorative borders and lines that carry no content meaning

6. OUTPUT FORMAT
   - Output ONLY the Markdown content
   - Do NOT wrap the output in markdown fences
   - Do NOT add commentary or explanations
   - Do NOT add "Page X of Y" markers
   - Start directly with the page content`

const tier3Prompt = tier2Prompt + `

7. FORMULAS
   - Render mathematical expressions using LaTeX: $inline$ and $$display$$

8. COMPLEX LAYOUT
   - If a table is too complex for pipe format, use HTML table markup
   - Describe figures and charts with a short *italic caption* instead of
     inventing an image link`

// maintainFormatSuffix is appended to the system prompt in sequential mode.
const maintainFormatSuffix = `

FORMAT CONTINUITY
   The previous page's image and Markdown are provided as context. Ensure
   your output is stylistically consistent with the previous page. Continue
   any numbered lists, subsections, or running text that began there.`

// systemPrompt returns the prompt for the configured tier, or the caller's
// override verbatim.
func (c *Config) systemPrompt() string {
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}
	var p string
	switch c.Fidelity {
	case Tier1:
		p = tier1Prompt
	case Tier3:
		p = tier3Prompt
	default:
		p = tier2Prompt
	}
	if c.MaintainFormat {
		p += maintainFormatSuffix
	}
	return p
}
