package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bena618/Armageddon-Chess-Backend/internal/middleware"
)

// Routes mounts the full HTTP surface. A nil limiter mounts every route
// unthrottled, which is what the tests want.
func Routes(rooms *RoomHandler, queue *QueueHandler, limiter *middleware.RateLimiter) *mux.Router {
	throttle := func(cfg middleware.RateLimitConfig, h http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return h
		}
		return limiter.RateLimitHandler(cfg, h)
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "not_found")
	})

	// Room routes. The fixed paths go first so {id} cannot capture them.
	router.HandleFunc("/rooms", throttle(middleware.RoomCreationLimit, rooms.Create)).Methods("POST")
	router.HandleFunc("/rooms/join-next", rooms.JoinNext).Methods("POST")
	router.HandleFunc("/rooms/available-count", rooms.AvailableCount).Methods("GET")
	router.HandleFunc("/rooms/{id}/ws", throttle(middleware.WebSocketUpgradeLimit, rooms.ServeWS)).Methods("GET")
	router.HandleFunc("/rooms/{id}", rooms.Get).Methods("GET")
	router.HandleFunc("/rooms/{id}/join", rooms.Join).Methods("POST")
	router.HandleFunc("/rooms/{id}/start-bidding", rooms.StartBidding).Methods("POST")
	router.HandleFunc("/rooms/{id}/submit-bid", rooms.SubmitBid).Methods("POST")
	router.HandleFunc("/rooms/{id}/choose-color", rooms.ChooseColor).Methods("POST")
	router.HandleFunc("/rooms/{id}/move", rooms.Move).Methods("POST")
	router.HandleFunc("/rooms/{id}/time-forfeit", rooms.TimeForfeit).Methods("POST")
	router.HandleFunc("/rooms/{id}/rematch", rooms.Rematch).Methods("POST")
	router.HandleFunc("/rooms/{id}/leave", rooms.Leave).Methods("POST")
	router.HandleFunc("/rooms/{id}/heartbeat", rooms.Heartbeat).Methods("POST")

	// Queue routes
	router.HandleFunc("/queue/join", throttle(middleware.QueueJoinLimit, queue.Join)).Methods("POST")
	router.HandleFunc("/queue/joinAll", throttle(middleware.QueueJoinLimit, queue.JoinAll)).Methods("POST")
	router.HandleFunc("/queue/leave", queue.Leave).Methods("POST")
	router.HandleFunc("/queue/checkMatch", queue.CheckMatch).Methods("POST")
	router.HandleFunc("/queue/heartbeat", queue.Heartbeat).Methods("POST")
	router.HandleFunc("/queue/status", queue.Status).Methods("GET")
	router.HandleFunc("/queue/ws", throttle(middleware.WebSocketUpgradeLimit, queue.ServeWS)).Methods("GET")

	// API Documentation
	router.HandleFunc("/docs", ServeAPIDocs).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
