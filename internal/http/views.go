package httpx

import (
	"net/http"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// View is a protected area of the portal and the roles that may open it.
type View struct {
	Name        string
	Path        string
	Requirement domainauth.Requirement
}

// DefaultViews lists the portal areas. An empty requirement admits every authenticated principal.
func DefaultViews() []View {
	return []View{
		{Name: "dashboard", Path: "/dashboard"},
		{Name: "profile", Path: "/profile"},
		{Name: "grades", Path: "/grades", Requirement: domainauth.RequireAnyRole(domainauth.RoleStudent, domainauth.RoleParent, domainauth.RoleTeacher)},
		{Name: "attendance", Path: "/attendance", Requirement: domainauth.RequireAnyRole(domainauth.RoleTeacher, domainauth.RoleAdmin)},
		{Name: "classes", Path: "/classes", Requirement: domainauth.RequireRole(domainauth.RoleTeacher)},
		{Name: "children", Path: "/children", Requirement: domainauth.RequireRole(domainauth.RoleParent)},
		{Name: "admin", Path: "/admin", Requirement: domainauth.RequireRole(domainauth.RoleAdmin)},
	}
}

type viewResponse struct {
	View      string                `json:"view"`
	Principal *domainauth.Principal `json:"principal"`
}

// viewHandler renders the view shell for the admitted principal.
func viewHandler(v View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		WriteJSON(w, http.StatusOK, viewResponse{View: v.Name, Principal: p})
	}
}

type pageResponse struct {
	Page        string `json:"page"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// loginPage is where unauthenticated browsers land; it echoes the sanitised return path.
func loginPage(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, pageResponse{
		Page:        "login",
		RedirectURI: domainauth.SafeRedirectPath(r.URL.Query().Get("redirect_uri")),
	})
}

func forbiddenPage(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusForbidden, pageResponse{Page: "forbidden"})
}
