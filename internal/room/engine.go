package room

import (
	"github.com/bena618/Armageddon-Chess-Backend/internal/engine"
	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

// Engine is the rules dependency of a room: move legality, terminal
// detection and material queries. Rooms rebuild one from the move
// history for each operation that needs it, so a failed commit never
// leaves a cached engine ahead of the persisted state.
type Engine interface {
	TryMove(uci string) error
	FEN() string
	PieceAt(square string) (engine.Piece, bool)
	MaterialOf(color models.PlayerColor) engine.Material
	Result() engine.Result
}

// EngineFactory rebuilds a game from its UCI move history.
type EngineFactory func(moves []string) (Engine, error)

// ReplayEngine is the production factory backed by notnil/chess.
func ReplayEngine(moves []string) (Engine, error) {
	g, err := engine.Replay(moves)
	if err != nil {
		return nil, err
	}
	return g, nil
}
