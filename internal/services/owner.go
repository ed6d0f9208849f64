package services

import (
	"strconv"
	"strings"

	"busreserve/internal/domain"
)

// OwnerInput is everything a request can offer to identify a lock holder.
type OwnerInput struct {
	UserID      int64
	ClientToken string
	RemoteAddr  string
}

const maxClientTokenLen = 128

// ResolveOwner picks the lock owner identity: an authenticated user first,
// then a client-supplied token, then the network origin. It fails rather
// than return an empty key.
func ResolveOwner(in OwnerInput) (domain.OwnerKey, error) {
	if in.UserID > 0 {
		return domain.OwnerKey{
			Kind:   domain.OwnerUser,
			Value:  strconv.FormatInt(in.UserID, 10),
			UserID: in.UserID,
		}, nil
	}
	if tok := strings.TrimSpace(in.ClientToken); tok != "" {
		if len(tok) > maxClientTokenLen {
			return domain.OwnerKey{}, domain.ValidationError{Field: "clientId", Msg: "is too long"}
		}
		return domain.OwnerKey{Kind: domain.OwnerClient, Value: tok}, nil
	}
	if addr := strings.TrimSpace(in.RemoteAddr); addr != "" {
		return domain.OwnerKey{Kind: domain.OwnerOrigin, Value: addr}, nil
	}
	return domain.OwnerKey{}, domain.ValidationError{Msg: "unable to identify lock owner"}
}
