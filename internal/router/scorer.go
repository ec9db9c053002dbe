package router

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	phraseFrequencyMultiplier = 1.5
	wordFrequencyMultiplier   = 0.5
	positionBonus             = 0.5
	positionWindow            = 0.2
	minMaxScore               = 0.1
)

var fileOperationPattern = regexp.MustCompile(`(?i)modifica|crea|edita|archivo|guardar|crear|fichero|file|documento`)

// AgentScore is one agent's raw and normalized score for a message.
type AgentScore struct {
	AgentID string  `json:"agent_id" yaml:"agent_id"`
	Raw     float64 `json:"raw" yaml:"raw"`
	Score   int     `json:"score" yaml:"score"`
}

// Scores lists per-agent scores in registration order.
type Scores []AgentScore

// Get returns the normalized score of an agent.
func (s Scores) Get(id string) int {
	for _, sc := range s {
		if sc.AgentID == id {
			return sc.Score
		}
	}
	return 0
}

// Map returns normalized scores keyed by agent id.
func (s Scores) Map() map[string]int {
	out := make(map[string]int, len(s))
	for _, sc := range s {
		out[sc.AgentID] = sc.Score
	}
	return out
}

type phraseRule struct {
	phrase  string
	credits []credit
}

type wordRule struct {
	keyword string
	re      *regexp.Regexp
	credit  credit
}

type credit struct {
	agent  int
	weight float64
}

// Scorer computes keyword scores for messages against a fixed set of tables.
type Scorer struct {
	agents     []string
	phrases    []phraseRule
	words      []wordRule
	boostAgent string
	fileBoost  int
}

// NewScorer precompiles the keyword tables. fileBoost is added to boostAgent's
// normalized score when a message mentions file operations.
func NewScorer(t Tables, boostAgent string, fileBoost int) *Scorer {
	s := &Scorer{boostAgent: boostAgent, fileBoost: fileBoost}
	phraseIdx := make(map[string]int)

	for ai, a := range t.Agents {
		s.agents = append(s.agents, a.ID)
		for _, c := range a.Categories {
			w := t.Weight(c.Name)
			counted := make(map[string]bool)
			for _, raw := range c.Keywords {
				kw := strings.ToLower(strings.TrimSpace(raw))
				if kw == "" {
					continue
				}
				if strings.Contains(kw, " ") {
					// A phrase credits each category listing it once.
					if counted[kw] {
						continue
					}
					counted[kw] = true
					idx, ok := phraseIdx[kw]
					if !ok {
						idx = len(s.phrases)
						phraseIdx[kw] = idx
						s.phrases = append(s.phrases, phraseRule{phrase: kw})
					}
					s.phrases[idx].credits = append(s.phrases[idx].credits, credit{agent: ai, weight: w})
					continue
				}
				s.words = append(s.words, wordRule{
					keyword: kw,
					re:      wordPattern(kw),
					credit:  credit{agent: ai, weight: w},
				})
			}
		}
	}
	return s
}

// wordPattern matches kw as a whole word. Boundaries are only asserted on
// edges that are word characters so keywords like "c#" or "c++" still match.
func wordPattern(kw string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)")
	first, _ := utf8.DecodeRuneInString(kw)
	last, _ := utf8.DecodeLastRuneInString(kw)
	if isWordRune(first) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(kw))
	if isWordRune(last) {
		b.WriteString(`\b`)
	}
	return regexp.MustCompile(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'))
}

// Score returns normalized 0-100 scores for every agent.
func (s *Scorer) Score(message string) Scores {
	lower := strings.ToLower(message)
	window := float64(utf8.RuneCountInString(lower)) * positionWindow
	raw := make([]float64, len(s.agents))

	for _, p := range s.phrases {
		if !strings.Contains(lower, p.phrase) {
			continue
		}
		freq := strings.Count(lower, p.phrase)
		early := runeIndex(lower, p.phrase) < window
		for _, c := range p.credits {
			points := c.weight * (1 + float64(freq-1)*phraseFrequencyMultiplier)
			if early {
				points += positionBonus
			}
			raw[c.agent] += points
		}
	}

	for _, w := range s.words {
		count := len(w.re.FindAllStringIndex(lower, -1))
		if count == 0 {
			continue
		}
		points := w.credit.weight * (1 + float64(count-1)*wordFrequencyMultiplier)
		if runeIndex(lower, w.keyword) < window {
			points += positionBonus
		}
		raw[w.credit.agent] += points
	}

	maxScore := minMaxScore
	for _, v := range raw {
		if v > maxScore {
			maxScore = v
		}
	}

	out := make(Scores, len(s.agents))
	for i, id := range s.agents {
		norm := int(math.Floor(raw[i]/maxScore*100 + 0.5))
		if norm > 100 {
			norm = 100
		}
		out[i] = AgentScore{AgentID: id, Raw: raw[i], Score: norm}
	}

	if s.fileBoost != 0 && fileOperationPattern.MatchString(lower) {
		for i := range out {
			if out[i].AgentID == s.boostAgent {
				out[i].Score = clamp(out[i].Score+s.fileBoost, 0, 100)
			}
		}
	}
	return out
}

// runeIndex is strings.Index measured in characters; -1 when absent.
func runeIndex(s, substr string) float64 {
	i := strings.Index(s, substr)
	if i < 0 {
		return -1
	}
	return float64(utf8.RuneCountInString(s[:i]))
}
