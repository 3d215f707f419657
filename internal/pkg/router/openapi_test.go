package router

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/require"
)

const openAPIFile = "../../../public/docs/v1/openapi.yml"

func TestOpenAPIDocumentIsValid(t *testing.T) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile(openAPIFile)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))
}

func TestOpenAPIDocumentCoversRoutes(t *testing.T) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile(openAPIFile)
	require.NoError(t, err)

	// One entry per route group; the document must not drift from the router.
	wantPaths := []string{
		"/auth/register",
		"/auth/login",
		"/auth/refresh",
		"/auth/logout",
		"/me",
		"/me/password",
		"/plans",
		"/plans/{id}",
		"/subscriptions",
		"/subscriptions/me",
		"/subscriptions/history",
		"/subscriptions/proration-preview",
		"/subscriptions/upgrade",
		"/subscriptions/cancel",
		"/subscriptions/reactivate",
		"/admin/plans",
		"/admin/plans/{id}",
		"/admin/subscriptions",
		"/admin/subscriptions/stats",
		"/admin/subscriptions/expiring",
		"/admin/subscriptions/{id}",
		"/admin/subscriptions/{id}/cancel",
		"/admin/subscriptions/{id}/mark-notified",
		"/admin/users",
		"/admin/users/{id}",
		"/admin/ops/sweeps/reminders",
		"/admin/ops/sweeps/expirations",
		"/admin/ops/scheduler",
	}

	for _, path := range wantPaths {
		require.NotNil(t, doc.Paths.Find(path), "path %s missing from document", path)
	}
}
