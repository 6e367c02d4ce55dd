// Package professor defines the records and contracts shared by the extraction pipeline.
package professor

import (
	"strings"
	"time"
)

// Record is one observed professor at one institution.
type Record struct {
	Name              string   `json:"name"`
	University        string   `json:"university"`
	Faculty           string   `json:"faculty"`
	Department        string   `json:"department"`
	Website           string   `json:"website"`
	Email             string   `json:"email"`
	ResearchInterests []string `json:"research_interests"`
}

// Emittable reports whether the record carries at least one research interest.
func (r Record) Emittable() bool {
	for _, interest := range r.ResearchInterests {
		if strings.TrimSpace(interest) != "" {
			return true
		}
	}
	return false
}

// Partial reports whether the record is missing its name or email.
func (r Record) Partial() bool {
	return strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Email) == ""
}

// StoredProfessor is a Record read back from the store with its assigned identifier.
type StoredProfessor struct {
	ID int64
	Record
}

// InterestRecord is one (professor, interest) row with its embedding.
type InterestRecord struct {
	ResearchInterest string    `json:"research_interest"`
	ProfID           int64     `json:"prof_id"`
	Embedding        []float32 `json:"embedding"`
}

// University pairs an institution name with its raw directory configuration.
type University struct {
	Name      string    `json:"name"`
	Directory []byte    `json:"directory"`
	CreatedAt time.Time `json:"created_at"`
}

// DirectoryRequest identifies one directory page within a faculty/department leaf.
type DirectoryRequest struct {
	URL        string
	Faculty    string
	Department string
}

// Link is a candidate profile discovered on a directory page.
type Link struct {
	URL        string
	Faculty    string
	Department string
	// NameHint is the display name shown on the directory page, when one is present.
	NameHint string
}

// Profile is what an extractor managed to pull from one profile page.
type Profile struct {
	Name      string
	Email     string
	Interests []string
	// SkipFallback disables the LLM fallback for this profile (for example, a bio gate failed).
	SkipFallback bool
}

// Source is the input handed to the LLM fallback: a URL, already-cleaned text, or both.
type Source struct {
	URL  string
	Text string
}

// Visited tracks profile URLs seen during one directory crawl.
// It is not safe for concurrent use.
type Visited map[string]struct{}

// NewVisited returns an empty set.
func NewVisited() Visited {
	return make(Visited)
}

// Add records url and reports whether it was new.
func (v Visited) Add(url string) bool {
	if _, ok := v[url]; ok {
		return false
	}
	v[url] = struct{}{}
	return true
}

// BatchReport summarizes a batched insert. Failed lists 1-based batch numbers;
// a failed batch never stops later batches from being attempted.
type BatchReport struct {
	Batches  int   `json:"batches"`
	Inserted int   `json:"inserted"`
	Failed   []int `json:"failed,omitempty"`
}

// OK reports whether every batch succeeded.
func (r BatchReport) OK() bool {
	return len(r.Failed) == 0
}
