package http

import (
	"context"
	"strings"

	"mysokha/internal/identity"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// draftOwner keys the draft slot: the subject when the request carried its
// own token, otherwise the browser's client id. A subject taken from the
// initial token is shared by every browser and must not key drafts.
func draftOwner(id identity.Identity) string {
	if id.Subject != "" && !id.Shared {
		return id.Subject
	}
	return id.ClientID
}

func clientID(ctx context.Context) string {
	return identity.FromContext(ctx).ClientID
}
