package llm

import "strings"

// pricing is USD per million tokens (input, output) for the models this tool
// is commonly pointed at. Unknown models estimate at zero rather than guess.
type pricing struct {
	inPerMTok  float64
	outPerMTok float64
}

var priceCatalog = map[string]pricing{
	"claude-opus":    {15.00, 75.00},
	"claude-sonnet":  {3.00, 15.00},
	"claude-haiku":   {0.80, 4.00},
	"gpt-4o":         {2.50, 10.00},
	"gpt-4o-mini":    {0.15, 0.60},
	"gpt-4.1":        {2.00, 8.00},
	"o3":             {2.00, 8.00},
}

// EstimateCost returns the estimated USD cost of a call. Longest-prefix match
// against the catalog; zero for unknown models.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	key := strings.ToLower(strings.TrimSpace(model))
	best := ""
	for prefix := range priceCatalog {
		if strings.HasPrefix(key, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	p := priceCatalog[best]
	return float64(promptTokens)/1e6*p.inPerMTok + float64(completionTokens)/1e6*p.outPerMTok
}
