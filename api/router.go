package api

import (
	"github.com/catalystforge/subtitle-worker/jobstate"
	"github.com/catalystforge/subtitle-worker/middleware"
	"github.com/catalystforge/subtitle-worker/store"
	"github.com/julienschmidt/httprouter"
)

// NewRouter builds the submission-side HTTP surface: job creation,
// status lookup, and the dashboard snapshot, matching the teacher's
// StartCatalystAPIRouter wiring style.
func NewRouter(s *store.Client, state *jobstate.Writer, apiToken string) *httprouter.Router {
	h := NewHandlers(s, state)
	router := httprouter.New()

	router.POST("/jobs", middleware.LogRequest()(middleware.IsAuthorized(apiToken, h.CreateJob())))
	router.GET("/jobs/:id", middleware.LogRequest()(middleware.IsAuthorized(apiToken, h.GetJob())))
	router.GET("/dashboard", middleware.LogRequest()(middleware.IsAuthorized(apiToken, h.Dashboard())))

	return router
}
