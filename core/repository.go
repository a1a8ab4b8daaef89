package core

import "time"

// Commit is a single entry in a repository log
type Commit struct {
	Hash      string    `json:"hash"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Date      time.Time `json:"date"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	Parents   []string  `json:"parents,omitempty"`
	Diff      string    `json:"diff,omitempty"`
	NostrID   string    `json:"nostrId,omitempty"`
	NostrUser string    `json:"nostrPubkey,omitempty"`
}

// FileContent is a file read at a ref
type FileContent struct {
	Ref     string `json:"ref"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Content string `json:"content"`
	Binary  bool   `json:"binary"`
}

// NostrCommit links a native commit hash to the identity-linked commit id
// and the key that signed it.
type NostrCommit struct {
	Hash    string `json:"hash"`
	NostrID string `json:"nostrId"`
	Pubkey  string `json:"pubkey"`
}
