package httpauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/caseygil/attack-workbench-rest-api/auth"
)

// RequireRole returns middleware admitting only principals holding role.
// It must run behind Authenticator.Middleware. A request without a principal
// gets 401, one lacking the role gets 403, and next is not invoked for
// either. RequireRole panics on a role outside the known set.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return RequireAnyRole(role)
}

// RequireAnyRole is like RequireRole but admits principals holding at least
// one of roles.
func RequireAnyRole(roles ...auth.Role) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		panic("httpauth: RequireAnyRole needs at least one role")
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			panic(fmt.Sprintf("httpauth: unknown role %q", r))
		}
		names = append(names, string(r))
	}
	want := strings.Join(names, ",")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, _ := auth.PrincipalFrom(ctx)
			switch err := auth.Authorize(p, roles...); {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, auth.ErrForbidden):
				slog.Default().InfoContext(ctx, "authz.role.denied", slog.String("required", want))
				writeJSONError(w, http.StatusForbidden, "forbidden", "insufficient role")
			default:
				slog.Default().InfoContext(ctx, "authz.principal.missing", slog.String("required", want))
				w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge("", nil))
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			}
		})
	}
}
