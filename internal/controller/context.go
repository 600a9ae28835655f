package controller

import "context"

type contextKey int

const (
	partyIdCtxKey contextKey = iota
	memberIdCtxKey
)

func (c controller) getPartyIdFromCtx(ctx context.Context) string {
	partyId, ok := ctx.Value(partyIdCtxKey).(string)
	if !ok {
		return ""
	}

	return partyId
}

func (c controller) getMemberIdFromCtx(ctx context.Context) string {
	memberId, ok := ctx.Value(memberIdCtxKey).(string)
	if !ok {
		return ""
	}

	return memberId
}
