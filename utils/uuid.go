package utils

import "github.com/google/uuid"

// HandleUUID generates a deterministic UUID v5 for a machine handle from
// its control socket path, so re-dialing the same socket yields the same
// handle identity.
func HandleUUID(socketPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(socketPath)).String()
}
