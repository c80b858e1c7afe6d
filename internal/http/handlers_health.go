package httpx

import (
	"net/http"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// healthHandler returns 200 once the process is serving; the body says whether the session restore has settled.
// It never reveals whether someone is signed in.
func healthHandler(status func() domainauth.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"settled": status().Settled(),
		})
	}
}
