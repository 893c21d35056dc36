package server

import (
	"fmt"
	"log"
	"net/http"

	"trivia-party/internal/flow"

	qrcode "github.com/skip2/go-qrcode"
)

// handleJoinQR renders the game's join URL as a PNG for the shared display.
func (s *Server) handleJoinQR(w http.ResponseWriter, r *http.Request, gameID string) {
	game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	joinURL := fmt.Sprintf("%s/join/%s", s.cfg.PublicBaseURL, game.String("code"))
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render qr code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		log.Printf("qr write failed game_id=%s err=%v", gameID, err)
	}
}
