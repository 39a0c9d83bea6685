// Package errmsg formats errors for command output.
package errmsg

import "fmt"

// Op is an operation that can fail, phrased to follow "Failed to".
type Op string

const (
	// Source catalog
	OpSourceFetch Op = "fetch source object"

	// Reconciliation
	OpReconcile Op = "reconcile playlist"
	OpPrune     Op = "prune deleted playlists"

	// Store
	OpMissingList  Op = "list missing songs"
	OpPlaylistList Op = "list playlists"
	OpIgnore       Op = "update ignore flag"

	// Downloads
	OpDownloadQueue   Op = "queue download"
	OpDownloadRefresh Op = "refresh downloads"

	OpInitialize Op = "initialize"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message naming the object the operation
// applied to.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}

// Wrap returns err annotated with op, or nil.
func Wrap(op Op, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
