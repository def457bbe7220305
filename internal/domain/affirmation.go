// Package domain defines the core types and interfaces for the affirmation
// player. All other packages depend on domain; domain depends on nothing.
package domain

import "time"

// Affirmation is a single piece of text the user wants to hear. It lives
// embedded inside a Project and is not addressable on its own.
type Affirmation struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	IsActive bool   `json:"isActive"`
	// SentenceIDs are the stored clip ids, one per sentence of Text, in
	// sentence order. Empty until audio has been generated and cleared
	// whenever Text changes.
	SentenceIDs   []string `json:"sentenceIds,omitempty"`
	SentenceCount int      `json:"sentenceCount,omitempty"`
}

// HasAudio reports whether pre-generated clips exist for the affirmation.
func (a Affirmation) HasAudio() bool {
	return len(a.SentenceIDs) > 0
}

// Project groups affirmations under a name and a default voice.
type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	VoiceID      string        `json:"voiceId,omitempty"`
	Affirmations []Affirmation `json:"affirmations"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Active returns the affirmations flagged active, in project order.
func (p *Project) Active() []Affirmation {
	out := make([]Affirmation, 0, len(p.Affirmations))
	for _, a := range p.Affirmations {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

// AudioMetadata describes one stored sentence clip.
type AudioMetadata struct {
	ClipID        string    `json:"clipId"`
	AffirmationID string    `json:"affirmationId"`
	SentenceIndex int       `json:"sentenceIndex"`
	VoiceID       string    `json:"voiceId"`
	Text          string    `json:"text"`
	DownloadURL   string    `json:"downloadUrl"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DeleteResult reports the outcome of a batch clip deletion.
type DeleteResult struct {
	Deleted []string
	Errors  map[string]error
}
