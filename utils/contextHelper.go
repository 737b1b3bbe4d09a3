package utils

import (
	"context"

	"github.com/mmdatafocus/rentals_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyAdminSubject  = appctx.ContextKeyAdminSubject
	ContextKeyAdminRole     = appctx.ContextKeyAdminRole
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetAdminSubjectFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyAdminSubject)
}

func SetAdminSubjectInContext(ctx context.Context, subject string) context.Context {
	return appctx.Set(ctx, ContextKeyAdminSubject, subject)
}

func SetAdminRoleInContext(ctx context.Context, role string) context.Context {
	return appctx.Set(ctx, ContextKeyAdminRole, role)
}
