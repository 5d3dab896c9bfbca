package middleware

import (
	"net/http"

	"github.com/mssola/useragent"

	"claimgate/pkg/requestcontext"
)

// Device parses the User-Agent into a compact "browser/os" summary for audit
// metadata. The raw UA string never reaches storage.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDevice(r.Context(), summarizeUserAgent(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func summarizeUserAgent(raw string) string {
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, _ := ua.Browser()
	if name == "" {
		name = "unknown"
	}
	os := ua.OSInfo().Name
	if os == "" {
		os = "unknown"
	}
	return name + "/" + os
}
