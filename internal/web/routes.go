package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/mbartos/photon/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Deps) {
	sim := deps.Thresholds.Similarity

	searchHandler := handlers.NewSearchHandler(deps.Similarity, sim.DefaultSearchPercent, sim.DuplicateMaxDistance)
	duplicatesHandler := handlers.NewDuplicatesHandler(deps.Embeddings, sim.DuplicateMaxDistance)
	peopleHandler := handlers.NewPeopleHandler(deps.Faces, float32(sim.FaceMinSimilarity))
	uploadHandler := handlers.NewUploadHandler(deps.Media, deps.Embeddings, deps.Blobs, deps.Embedder, deps.Waker, deps.Model)
	eventsHandler := handlers.NewEventsHandler(deps.Broadcaster)
	healthHandler := handlers.NewHealthHandler(deps.Embeddings, deps.Faces)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		r.Post("/search/similar", searchHandler.Similar)
		r.Post("/search/image", searchHandler.ByImage)
		r.Post("/search/text", searchHandler.ByText)

		r.Post("/duplicates", duplicatesHandler.Find)

		r.Post("/people/cluster", peopleHandler.Cluster)
		r.Get("/people", peopleHandler.List)
		r.Put("/people/{clusterID}", peopleHandler.Name)

		r.Post("/upload", uploadHandler.Upload)

		r.Get("/events", eventsHandler.Stream)
	})
}
