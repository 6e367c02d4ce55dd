package llm

import (
	"fmt"
	"slices"
	"strings"
)

// Strategy names accepted by Fallback.Interests.
const (
	StrategySchema     = "schema"
	StrategyComma      = "comma"
	StrategySummarize  = "summarize"
	StrategyDetailed   = "detailed"
	StrategyParaphrase = "paraphrase"
)

const interestsField = "research_interests"

// Strategy is a prompt plus the sampling settings and output shape it expects.
type Strategy struct {
	Name        string
	System      string
	Template    string
	Delimiter   string
	Temperature float32
	TopP        float32
	NumCtx      int
	Schema      *Schema
}

// Request renders the strategy for content.
func (s Strategy) Request(content string) Request {
	user := content
	if s.Template != "" {
		user = strings.ReplaceAll(s.Template, "{content}", content)
	}
	return Request{
		System:      s.System,
		User:        user,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		NumCtx:      s.NumCtx,
		Schema:      s.Schema,
	}
}

// Parse turns a completion into interest phrases.
func (s Strategy) Parse(completion string) ([]string, error) {
	if s.Schema != nil {
		return ParseSchema(completion, s.Schema.Field)
	}
	if s.Delimiter != "" {
		return SplitOn(completion, s.Delimiter), nil
	}
	return ParseDelimited(completion), nil
}

const expertSystem = "You are an expert in extracting and summarizing research interests from professor biographies."

var strategies = map[string]Strategy{
	StrategySchema: {
		Name:   StrategySchema,
		System: "Extract the research interests from the professor's profile. Return them as an object with that data.",
		Schema: &Schema{
			Field:       interestsField,
			Description: "Research interests of the professor",
		},
	},
	StrategyComma: {
		Name: StrategyComma,
		System: "Given a professor biography, extract a comma separated list of research interests for this professor. " +
			"Return only a comma separated list of research interests, if no interests are found, return nothing.",
		Delimiter: ",",
	},
	StrategySummarize: {
		Name:   StrategySummarize,
		System: expertSystem,
		Template: `Given a professor biography, extract the research interests as a concise, semicolon-separated list.
- Summarize slightly, keeping each phrase under ten words.
- Preserve important technical terms and compound phrases.
- Avoid duplicate and redundant phrases.
- If no explicit research interests are mentioned, return an empty string with no explanation.

Input:
{content}

Output:
A semicolon-separated list of summarized research interests or an empty string.`,
		Delimiter:   ";",
		Temperature: 0.4,
		NumCtx:      30000,
	},
	StrategyDetailed: {
		Name:   StrategyDetailed,
		System: "You are an expert in extracting detailed research interests from professor biographies.",
		Template: `Given a professor biography, extract all mentioned research interests as a semicolon-separated list.
- Keep technical terms and multi-word phrases exactly as they appear.
- Do not split phrases that belong together, for example "Gait & Posture".
- Convert HTML entities such as "&amp;" to the characters they stand for.
- Group similar areas into concise terms without losing detail.
- If no explicit research interests are mentioned, return an empty string with no explanation.

Input:
{content}

Output:
A semicolon-separated list of all relevant research interests or an empty string.`,
		Delimiter:   ";",
		Temperature: 0.3,
		TopP:        0.9,
		NumCtx:      50000,
	},
	StrategyParaphrase: {
		Name:   StrategyParaphrase,
		System: expertSystem,
		Template: `Given a research interest, paraphrase and shorten it while keeping technical keywords.
If the string holds several interests, return them as a semicolon-separated list.
- Preserve important technical terms and compound phrases.
- Avoid duplicate and redundant phrases.
- If no explicit research interests are mentioned, return an empty string with no explanation.

Input:
{content}

Output:
A semicolon-separated list or a single summarized research interest, or an empty string.`,
		Delimiter:   ";",
		Temperature: 0.1,
		TopP:        0.8,
		NumCtx:      30000,
	},
}

// profileLinksStrategy asks for the profile URLs listed on a directory page.
var profileLinksStrategy = Strategy{
	Name: "profile-links",
	System: "Extract every professor's profile page URL from the directory listing below. " +
		"Return only URLs that appear in the listing.",
	Schema: &Schema{Field: "urls", Description: "URL of each professor's web page"},
}

// Lookup returns the named strategy.
func Lookup(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("unknown llm strategy %q", name)
	}
	return s, nil
}

// Strategies lists the strategy names in sorted order.
func Strategies() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
