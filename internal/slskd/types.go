// Package slskd provides a client for the slskd API.
package slskd

import "strings"

// SearchRequest is a search as slskd reports it.
type SearchRequest struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	ResponseCount int    `json:"responseCount"`
}

// SearchResponse is one peer's answer to a search.
type SearchResponse struct {
	Username    string `json:"username"`
	HasFreeSlot bool   `json:"hasFreeUploadSlot"`
	QueueLength int    `json:"queueLength"`
	UploadSpeed int    `json:"uploadSpeed"` // bytes per second
	Files       []File `json:"files"`
}

// File is a shared file offered in a search response. Filename and Size are
// what slskd needs to enqueue it.
type File struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	BitRate   int    `json:"bitRate"`
	IsLocked  bool   `json:"isLocked"`
}

// Download is one transfer from the downloads listing.
type Download struct {
	Username         string `json:"username"`
	Filename         string `json:"filename"`
	State            string `json:"state"` // e.g. "Queued, Remotely" or "Completed, Succeeded"
	Size             int64  `json:"size"`
	BytesTransferred int64  `json:"bytesTransferred"`
}

// userDownloads is the downloads listing of a single peer, grouped by
// remote directory.
type userDownloads struct {
	Directories []struct {
		Files []Download `json:"files"`
	} `json:"directories"`
}

// SearchState is the state string of a search. slskd may join several
// flags, as in "Completed, ResponseLimitReached".
type SearchState string

const (
	SearchStateRequested  SearchState = "Requested"
	SearchStateInProgress SearchState = "InProgress"
	SearchStateCompleted  SearchState = "Completed"
	SearchStateTimedOut   SearchState = "TimedOut"
	SearchStateCancelled  SearchState = "Cancelled"
	SearchStateErrored    SearchState = "Errored"
)

var terminalStates = []SearchState{
	SearchStateCompleted,
	SearchStateTimedOut,
	SearchStateCancelled,
	SearchStateErrored,
}

// IsComplete reports whether s carries any terminal flag.
func (s SearchState) IsComplete() bool {
	for _, t := range terminalStates {
		if strings.Contains(string(s), string(t)) {
			return true
		}
	}
	return false
}
