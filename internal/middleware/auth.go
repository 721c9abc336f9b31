package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorely/internal/auth"
)

// Identity reads the caller's user id from a header set by a trusted proxy
// and stores it in the request's AuthContext. Requests without the header
// pass through anonymously; a malformed value is rejected.
func Identity(userHeader, roleHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(userHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				writeError(w, http.StatusBadRequest, "invalid "+userHeader+" header")
				return
			}

			ac := auth.AuthContext{UserID: userID}
			if roleHeader != "" {
				ac.Role = r.Header.Get(roleHeader)
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireUser rejects requests that carry no identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.CurrentUser(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "user identity required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin checks that the caller has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
