package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bena618/Armageddon-Chess-Backend/internal/room"
)

// ErrorResponse is the uniform failure envelope: a single machine
// readable code under "error".
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithOpError maps a room operation error onto its HTTP status
// and error code. Anything that is not an OpError is an internal fault.
func respondWithOpError(w http.ResponseWriter, err error) {
	var opErr *room.OpError
	if errors.As(err, &opErr) {
		respondWithError(w, opErr.Status, opErr.Code)
		return
	}
	log.Printf("[HTTP] Unexpected error: %v", err)
	respondWithError(w, http.StatusInternalServerError, room.ErrInternal.Code)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
