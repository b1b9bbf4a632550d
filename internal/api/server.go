package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/flowdeck/internal/channel"
	"github.com/soochol/flowdeck/internal/executor"
	"github.com/soochol/flowdeck/internal/nodetypes"
	"github.com/soochol/flowdeck/internal/repository"
	"github.com/soochol/flowdeck/internal/services"
)

type Server struct {
	builder  *services.BuilderService
	catalog  *services.CatalogService
	tracking *services.TrackingService
	history  repository.ExecutionRepository
	executor *executor.Executor
	hub      *channel.Hub
}

func NewServer(builder *services.BuilderService, catalog *services.CatalogService, tracking *services.TrackingService) *Server {
	return &Server{builder: builder, catalog: catalog, tracking: tracking}
}

// SetExecutionHistory enables the execution history endpoints.
func (s *Server) SetExecutionHistory(repo repository.ExecutionRepository) {
	s.history = repo
}

// SetLocalExecutor mounts the executor contract (/tools, /workflows/execute,
// /active-workflows, /ws) served by the in-process executor.
func (s *Server) SetLocalExecutor(exec *executor.Executor, hub *channel.Hub) {
	s.executor = exec
	s.hub = hub
}

func (s *Server) registry() *nodetypes.Registry {
	return s.catalog.Registry()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/overview", s.getOverview)
		r.Get("/node-types", s.listNodeTypes)
		r.Get("/node-types/{type}", s.getNodeType)
		r.Get("/tools", s.listTools)
		r.Post("/tools/refresh", s.refreshTools)
		r.Post("/forms/resolve", s.resolveForm)
		r.Post("/forms/validate", s.validateForm)

		r.Route("/graphs", func(r chi.Router) {
			r.Post("/", s.createGraph)
			r.Get("/", s.listGraphs)
			r.Get("/{id}", s.getGraph)
			r.Delete("/{id}", s.deleteGraph)
			r.Post("/{id}/nodes", s.addNode)
			r.Patch("/{id}/nodes/{nodeId}", s.updateNode)
			r.Delete("/{id}/nodes/{nodeId}", s.removeNode)
			r.Get("/{id}/nodes/{nodeId}/form", s.nodeForm)
			r.Post("/{id}/edges", s.connect)
			r.Delete("/{id}/edges/{edgeId}", s.removeEdge)
			r.Post("/{id}/check", s.checkGraph)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", s.createPlan)
			r.Get("/", s.listPlans)
			r.Get("/{id}", s.getPlan)
			r.Delete("/{id}", s.deletePlan)
			r.Put("/{id}/goal", s.setGoal)
			r.Post("/{id}/steps", s.addStep)
			r.Patch("/{id}/steps/{stepId}", s.updateStep)
			r.Delete("/{id}/steps/{stepId}", s.removeStep)
			r.Post("/{id}/steps/{stepId}/move", s.moveStep)
			r.Post("/{id}/validate", s.validatePlan)
			r.Post("/{id}/submit", s.submitPlan)
		})
		r.Post("/generate-plan", s.generatePlan)

		r.Route("/flows", func(r chi.Router) {
			r.Get("/", s.listFlows)
			r.Post("/{id}/track", s.trackFlow)
			r.Get("/{id}", s.getFlow)
			r.Delete("/{id}", s.releaseFlow)
			r.Get("/{id}/logs", s.streamFlowLogs)
		})

		if s.history != nil {
			r.Get("/executions", s.listExecutions)
			r.Get("/executions/{id}", s.getExecution)
		}
		if s.executor != nil {
			r.Get("/executor/stats", s.executorStats)
		}
	})

	if s.executor != nil {
		r.Get("/tools", s.executorTools)
		r.Post("/workflows/execute", s.executeWorkflow)
		r.Get("/active-workflows", s.activeWorkflows)
		if s.hub != nil {
			r.Get("/ws", s.hub.ServeWS)
		}
	}
	return r
}
