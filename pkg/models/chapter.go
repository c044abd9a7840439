package models

// Default chapter values applied when the outline omits them.
const (
	DefaultHeadingLevel    = 1
	DefaultTargetWordCount = 500
	DefaultTone            = "Professional"
)

// SourceHints points the research stage at preferred material.
type SourceHints struct {
	Priority         string   `json:"priority,omitempty" yaml:"priority"`
	InternalFiles    []string `json:"internal_files,omitempty" yaml:"internal_files"`
	PublicReferences []string `json:"public_references,omitempty" yaml:"public_references"`
}

// ChapterSpec is one outline unit. It is never mutated after loading.
type ChapterSpec struct {
	ID              string       `json:"id" yaml:"id"`
	HeadingLabel    string       `json:"heading_label" yaml:"heading_label"`
	Level           int          `json:"level,omitempty" yaml:"level"`
	Purpose         []string     `json:"purpose,omitempty" yaml:"purpose"`
	KeyTopics       []string     `json:"key_topics,omitempty" yaml:"key_topics"`
	TopicsToAvoid   []string     `json:"topics_to_avoid,omitempty" yaml:"topics_to_avoid"`
	Keywords        []string     `json:"keywords,omitempty" yaml:"keywords"`
	TargetWordCount int          `json:"target_word_count,omitempty" yaml:"target_word_count"`
	ResearchFiles   []string     `json:"research_files,omitempty" yaml:"research_files"`
	SourceHints     *SourceHints `json:"source_hints,omitempty" yaml:"source_hints"`
}

// HeadingLevel returns the heading depth, defaulting to 1.
func (c ChapterSpec) HeadingLevel() int {
	if c.Level <= 0 {
		return DefaultHeadingLevel
	}
	return c.Level
}

// WordTarget returns the target word count, defaulting to 500.
func (c ChapterSpec) WordTarget() int {
	if c.TargetWordCount <= 0 {
		return DefaultTargetWordCount
	}
	return c.TargetWordCount
}

// StyleGuide carries document-wide writing instructions.
type StyleGuide struct {
	Tone string `json:"overall_tone_and_style" yaml:"overall_tone_and_style"`
}

// ToneOrDefault returns the configured tone or "Professional".
func (s StyleGuide) ToneOrDefault() string {
	if s.Tone == "" {
		return DefaultTone
	}
	return s.Tone
}

// OutlineMetadata describes the document being generated.
type OutlineMetadata struct {
	Version     string `json:"version" yaml:"version"`
	CreatedDate string `json:"created_date" yaml:"created_date"`
	Author      string `json:"author" yaml:"author"`
}

// Outline is the full input document description.
type Outline struct {
	Title    string          `json:"title,omitempty" yaml:"title"`
	Chapters []ChapterSpec   `json:"table_of_contents" yaml:"table_of_contents"`
	Style    StyleGuide      `json:"styleguide" yaml:"styleguide"`
	Metadata OutlineMetadata `json:"metadata" yaml:"metadata"`
}

// ReviewDecision is the reviewer verdict on a draft.
type ReviewDecision string

const (
	DecisionUnset  ReviewDecision = ""
	DecisionAccept ReviewDecision = "accept"
	DecisionReject ReviewDecision = "reject"
)

// CompletedChapter is an accepted chapter frozen for assembly.
type CompletedChapter struct {
	Spec         ChapterSpec           `json:"spec"`
	DraftText    string                `json:"draft_text"`
	Usage        map[string]TokenUsage `json:"operation_usage"`
	Operations   []string              `json:"operations"`
	TokenSummary TokenUsage            `json:"chapter_token_summary"`
	Reviews      int                   `json:"reviews"`
	ForcedAccept bool                  `json:"forced_accept,omitempty"`
}

// SearchResult is one ranked corpus hit.
type SearchResult struct {
	Score             float64 `json:"score"`
	ID                string  `json:"id"`
	Text              string  `json:"text"`
	CategoryPrimary   string  `json:"category_primary"`
	CategorySecondary string  `json:"category_secondary"`
	Source            string  `json:"source,omitempty"`
}
