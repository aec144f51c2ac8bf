package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/assets/image":                "/v1/assets/image",
		"/v1/assets/image/abc123":         "/v1/assets/image/:id",
		"/v1/assets/confidential/abc123":  "/v1/assets/confidential/:id",
		"/v1/assets/document/abc123/meta": "/v1/assets/document/:id/meta",
		"/v1/assets/image?limit=10":       "/v1/assets/image",
		"/v1/roles/role-7/permissions":    "/v1/roles/:id/permissions",
		"/v1/roles/role-7":                "/v1/roles/:id",
		"/v1/roles":                       "/v1/roles",
		"/v1/principals/p-42":             "/v1/principals/:id",
		"/v1/principals/p-42/approve":     "/v1/principals/:id/approve",
		"/v1/principals/p-42/role":        "/v1/principals/:id/role",
		"/v1/analytics/ip-history/p-42":   "/v1/analytics/ip-history/:id",
		"/v1/analytics/impossible-travel": "/v1/analytics/impossible-travel",
		"/v1/analytics/session-hijacking": "/v1/analytics/session-hijacking",
		"/v1/auth/login":                  "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
