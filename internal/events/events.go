// Package events holds the messages passed between producers and consumers
// running in separate goroutines.
package events

import "time"

// DocumentFetchedEvent is sent when a source produced a document to seed the corpus with.
type DocumentFetchedEvent struct {
	Source      string // URL, object key or file path
	Filename    string
	ContentType string
	Data        []byte
	FetchedAt   time.Time
}

// AdmissionEvent is sent after the corpus admission decision for a document.
type AdmissionEvent struct {
	Token     string
	Filename  string
	Action    string // "admitted" or "discarded"
	Replaced  bool   // the identity was already in the corpus
	Timestamp time.Time
}
