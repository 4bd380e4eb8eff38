package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryosuke1832/remind/internal/api/auth"
	"github.com/ryosuke1832/remind/internal/api/recovery"
)

// Deps are the handlers mounted by NewRouter.
type Deps struct {
	Users    *UserHandler
	Avatars  *AvatarHandler
	Media    *MediaHandler
	Sessions *SessionHandler
	Health   *HealthHandler

	// APIKeys, when set, are required as bearer tokens outside the open paths.
	APIKeys []string

	// UploadsDir, when set, is served under /uploads/ for the local blob store.
	UploadsDir string
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)
	router.Use(auth.Middleware(d.APIKeys))

	router.HandleFunc("/api/health", d.Health.CheckHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/api/users", d.Users.CreateUser).Methods("POST")
	router.HandleFunc("/api/users/{userId}", d.Users.GetUser).Methods("GET")
	router.HandleFunc("/api/users/{userId}", d.Users.UpdateUser).Methods("PATCH")

	router.HandleFunc("/api/users/{userId}/avatars", d.Avatars.CreateInvite).Methods("POST")
	router.HandleFunc("/api/users/{userId}/avatars", d.Avatars.ListAvatars).Methods("GET")
	router.HandleFunc("/api/users/{userId}/avatars/stream", d.Avatars.StreamAvatars).Methods("GET")
	router.HandleFunc("/api/users/{userId}/avatars/{avatarId}/default", d.Avatars.SetDefault).Methods("PUT")
	router.HandleFunc("/api/users/{userId}/avatars/{avatarId}", d.Avatars.SaveAvatar).Methods("PUT")
	router.HandleFunc("/api/users/{userId}/avatars/{avatarId}", d.Avatars.DeleteAvatar).Methods("DELETE")

	router.HandleFunc("/api/avatars/{avatarId}", d.Avatars.GetAvatar).Methods("GET")
	router.HandleFunc("/api/avatars/{avatarId}", d.Avatars.UpdateAvatar).Methods("PATCH")
	router.HandleFunc("/api/avatars/{avatarId}/media", d.Media.SubmitMedia).Methods("POST")
	router.HandleFunc("/api/avatars/{avatarId}/verify", d.Avatars.VerifyAvatar).Methods("POST")

	router.HandleFunc("/api/validate/avatar-name", d.Avatars.ValidateName).Methods("POST")

	router.HandleFunc("/api/users/{userId}/sessions", d.Sessions.CreateSession).Methods("POST")
	router.HandleFunc("/api/sessions/{sessionId}", d.Sessions.GetSession).Methods("GET")
	router.HandleFunc("/api/sessions/{sessionId}", d.Sessions.EndSession).Methods("DELETE")
	router.HandleFunc("/api/sessions/{sessionId}/answers", d.Sessions.Answer).Methods("POST")
	router.HandleFunc("/api/sessions/{sessionId}/answers", d.Sessions.ClearAnswers).Methods("DELETE")
	router.HandleFunc("/api/sessions/{sessionId}/answers/{index:[0-9]+}", d.Sessions.RemoveAnswer).Methods("DELETE")
	router.HandleFunc("/api/sessions/{sessionId}/next", d.Sessions.Next).Methods("POST")

	if d.UploadsDir != "" {
		router.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadsDir))),
		).Methods("GET", "HEAD")
	}
	return router
}

// WithCORS opens the API to the companion web app origins.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(h)
}
