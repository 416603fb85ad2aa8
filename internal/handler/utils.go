package handler

import (
	"net/http"

	"tush00nka/unzipbot/internal/pkg/httputils"
)

type PongResponse struct {
	Message string `json:"message"`
}

// Ping отвечает "Pong", пока процесс жив.
func Ping(w http.ResponseWriter, r *http.Request) {
	httputils.ResponseJSON(w, http.StatusOK, PongResponse{Message: "Pong"})
}
