package model

import "time"

// Document owns one root node id. Title, folder and rank belong to the
// document backend; the sync core only reads RootID.
type Document struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Owner   string    `json:"owner"`
	Folder  string    `json:"folder,omitempty"`
	Rank    string    `json:"rank,omitempty"`
	RootID  string    `json:"root_id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}
