package handlers

import (
	"context"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// StatusNew broadcasts a new status to every other connection, stamped with
// the author's id.
func StatusNew(ctx context.Context, deps Deps, auth AuthContext, req wire.StatusPayload) EventResult {
	out := make(wire.StatusPayload, len(req)+1)
	for k, v := range req {
		out[k] = v
	}
	out["userId"] = auth.UserID()
	return emits(toAllExceptSelf(wire.EventStatusNew, out))
}

// StatusViewed tells the status owner who viewed it.
func StatusViewed(ctx context.Context, deps Deps, auth AuthContext, req wire.StatusViewedRequest) EventResult {
	if req.OwnerID <= 0 || req.OwnerID == auth.UserID() {
		return EventResult{}
	}

	viewer, err := deps.Users().UserSummary(ctx, auth.UserID())
	if err != nil {
		logger.Warnf("status:viewed: viewer %d lookup failed: %v", auth.UserID(), err)
		viewer = wire.UserSummary{ID: auth.UserID()}
	}

	return emits(toUser(req.OwnerID, wire.EventStatusViewed, wire.StatusViewedPayload{
		StatusID: req.StatusID,
		Viewer:   viewer,
	}))
}
