package transport

import "net/http"

type apiRouter struct {
	h *handler
}

func NewAPIRouter(h *handler) *apiRouter {
	return &apiRouter{h: h}
}

func (r *apiRouter) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/api/tasks", r.methodSplit(r.h.createTask, r.h.listTasks))
	mux.HandleFunc("/api/tasks/stream", r.h.streamTasks)
	mux.HandleFunc("/api/messages", r.methodSplit(r.h.publishMessage, r.h.listMessages))
	mux.HandleFunc("/api/messages/stream", r.h.streamMessages)
	mux.HandleFunc("/api/executions", r.h.listExecutions)

	return mux
}

func (r *apiRouter) methodSplit(post, get http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			post(w, req)
		case http.MethodGet:
			get(w, req)
		default:
			writeError(w, http.StatusMethodNotAllowed, "")
		}
	}
}

type workerRouter struct {
	h *workerHandler
}

func NewWorkerRouter(h *workerHandler) *workerRouter {
	return &workerRouter{h: h}
}

func (r *workerRouter) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/process-task", r.h.processTask)

	return mux
}
