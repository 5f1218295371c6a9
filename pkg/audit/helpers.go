package audit

import (
	"strings"
)

// documentIDFromPath extracts the document ID from paths like
// /documents/{id}/status or /api/v1/documents/{id}/versions.
func documentIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "documents" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// actionFromRequest returns a human-readable action name from the HTTP method and path.
func actionFromRequest(method, path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	last := parts[len(parts)-1]

	switch {
	case last == "status" && method == "PUT":
		return "change-status"
	case last == "versions" && method == "POST":
		return "create-version"
	case last == "documents" && method == "POST":
		return "create-document"
	}

	switch method {
	case "POST":
		return "create"
	case "PUT":
		return "update"
	case "PATCH":
		return "patch"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// isAudited returns true if the request should be audited. Only mutating
// requests are; reads and health probes are not.
func isAudited(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// isHealthEndpoint returns true for health-check paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz", "/metrics":
		return true
	}
	return false
}
