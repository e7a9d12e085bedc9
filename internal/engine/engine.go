package engine

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"

	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

// InitialFEN is the standard starting position.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrIllegalMove is returned by TryMove when the move is not legal in
// the current position.
var ErrIllegalMove = errors.New("engine: illegal move")

// Game wraps a notnil/chess game. Legality, terminal detection and
// draw rules all come from the library; this package only maps them
// onto the server's vocabulary.
type Game struct {
	g *chess.Game
}

func New() *Game {
	return &Game{g: chess.NewGame()}
}

// Load builds a game from an arbitrary FEN. Positions loaded this way
// have no move history, so threefold repetition cannot be detected on
// them; use Replay for live games.
func Load(fen string) (*Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("engine: bad fen: %w", err)
	}
	return &Game{g: chess.NewGame(opt)}, nil
}

// Replay rebuilds a game from the standard starting position by
// applying UCI moves in order. Rebuilding from the full history keeps
// repetition and fifty-move counters accurate.
func Replay(moves []string) (*Game, error) {
	e := New()
	for i, mv := range moves {
		if err := e.TryMove(mv); err != nil {
			return nil, fmt.Errorf("engine: replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return e, nil
}

// TryMove applies a UCI move. After a successful move any claimable
// threefold repetition or fifty-move draw is claimed immediately, so
// those conditions terminate the game without a separate claim step.
func (e *Game) TryMove(uci string) error {
	mv, err := chess.UCINotation{}.Decode(e.g.Position(), uci)
	if err != nil {
		return ErrIllegalMove
	}
	if err := e.g.Move(mv); err != nil {
		return ErrIllegalMove
	}
	for _, method := range e.g.EligibleDraws() {
		if method == chess.ThreefoldRepetition || method == chess.FiftyMoveRule {
			if err := e.g.Draw(method); err == nil {
				break
			}
		}
	}
	return nil
}

func (e *Game) FEN() string {
	return e.g.Position().String()
}

func (e *Game) Turn() models.PlayerColor {
	if e.g.Position().Turn() == chess.White {
		return models.White
	}
	return models.Black
}

// PieceKind is a library-independent piece tag.
type PieceKind string

const (
	KindKing   PieceKind = "k"
	KindQueen  PieceKind = "q"
	KindRook   PieceKind = "r"
	KindBishop PieceKind = "b"
	KindKnight PieceKind = "n"
	KindPawn   PieceKind = "p"
)

// Piece is one occupied square.
type Piece struct {
	Color  models.PlayerColor
	Kind   PieceKind
	Square string
}

// PieceAt reports the piece on a square named in algebraic form
// ("e4"). The second return is false for empty or malformed squares.
func (e *Game) PieceAt(square string) (Piece, bool) {
	if len(square) != 2 {
		return Piece{}, false
	}
	file := square[0] - 'a'
	rank := square[1] - '1'
	if file > 7 || rank > 7 {
		return Piece{}, false
	}
	sq := chess.NewSquare(chess.File(file), chess.Rank(rank))
	p := e.g.Position().Board().Piece(sq)
	if p == chess.NoPiece {
		return Piece{}, false
	}
	return Piece{Color: colorOf(p.Color()), Kind: kindOf(p.Type()), Square: square}, true
}

func kindOf(t chess.PieceType) PieceKind {
	switch t {
	case chess.King:
		return KindKing
	case chess.Queen:
		return KindQueen
	case chess.Rook:
		return KindRook
	case chess.Bishop:
		return KindBishop
	case chess.Knight:
		return KindKnight
	default:
		return KindPawn
	}
}

// Material counts one side's remaining pieces.
type Material struct {
	Queens  int
	Rooks   int
	Bishops int
	Knights int
	Pawns   int
}

// CanForceMate reports whether this material can ever deliver mate
// against a lone king: any queen, rook or pawn does, and so do two or
// more minor pieces. A single bishop or knight cannot.
func (m Material) CanForceMate() bool {
	return m.Queens > 0 || m.Rooks > 0 || m.Pawns > 0 || m.Bishops+m.Knights >= 2
}

func (e *Game) MaterialOf(color models.PlayerColor) Material {
	var m Material
	want := chess.White
	if color == models.Black {
		want = chess.Black
	}
	for _, p := range e.g.Position().Board().SquareMap() {
		if p.Color() != want {
			continue
		}
		switch p.Type() {
		case chess.Queen:
			m.Queens++
		case chess.Rook:
			m.Rooks++
		case chess.Bishop:
			m.Bishops++
		case chess.Knight:
			m.Knights++
		case chess.Pawn:
			m.Pawns++
		}
	}
	return m
}

// Result describes the game's terminal state, if any.
type Result struct {
	Finished bool
	Winner   models.PlayerColor // empty on a draw
	Reason   string
}

func (e *Game) Result() Result {
	switch e.g.Outcome() {
	case chess.WhiteWon:
		return Result{Finished: true, Winner: models.White, Reason: models.ResultCheckmate}
	case chess.BlackWon:
		return Result{Finished: true, Winner: models.Black, Reason: models.ResultCheckmate}
	case chess.Draw:
		return Result{Finished: true, Reason: drawReason(e.g.Method())}
	default:
		return Result{}
	}
}

func drawReason(method chess.Method) string {
	switch method {
	case chess.Stalemate:
		return models.ReasonStalemate
	case chess.InsufficientMaterial:
		return models.ReasonInsufficientMaterial
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return models.ReasonThreefoldRepetition
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return models.ReasonFiftyMoveRule
	default:
		return models.ResultDraw
	}
}

func colorOf(c chess.Color) models.PlayerColor {
	if c == chess.White {
		return models.White
	}
	return models.Black
}
