package engine

import (
	"github.com/hailam/chessmind/internal/board"
)

// Move ordering priorities: captures top out under the killer scores,
// a non-capturing promotion sits just above the best MVV-LVA capture
// score (8900, pawn takes queen), and other quiet moves score their
// raw history value.
const (
	KillerScore1  = 900000 // killers[ply].primary
	KillerScore2  = 800000 // killers[ply].secondary
	PromotionBump = 9000
)

// MoveOrderer holds the per-game killer and history tables used by
// score_move.
type MoveOrderer struct {
	killers [MaxPly][2]board.Move
	history [64][64]int
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{}
}

// Clear resets killers and history to their initial empty state, used
// at new-game reset (Engine.ClearTT). Neither table is touched between
// iterative-deepening iterations or between select_move calls within
// the same game: both persist and accumulate for the life of a game.
func (mo *MoveOrderer) Clear() {
	for i := range mo.killers {
		mo.killers[i][0] = board.NoMove
		mo.killers[i][1] = board.NoMove
	}
	for i := range mo.history {
		for j := range mo.history[i] {
			mo.history[i][j] = 0
		}
	}
}

// ScoreMoves assigns ordering priorities to every move in the list.
// The TT-suggested move is not scored here; the caller splices it to
// the front before calling this.
func (mo *MoveOrderer) ScoreMoves(pos *board.Position, moves *board.MoveList, ply int) []int {
	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.Get(i), ply)
	}
	return scores
}

// scoreMove returns the priority for a single move per the victim*10
// - attacker MVV-LVA table, promotion bonus, killer slots, and plain
// history for quiet moves.
func (mo *MoveOrderer) scoreMove(pos *board.Position, m board.Move, ply int) int {
	if m.IsCapture(pos) {
		attackerPiece := pos.PieceAt(m.From())
		attacker := pieceValues[board.Pawn]
		if attackerPiece != board.NoPiece {
			attacker = pieceValues[attackerPiece.Type()]
		}

		var victim int
		if m.IsEnPassant() {
			victim = pieceValues[board.Pawn]
		} else if capturedPiece := pos.PieceAt(m.To()); capturedPiece != board.NoPiece {
			victim = pieceValues[capturedPiece.Type()]
		}

		return victim*10 - attacker
	}

	if m.IsPromotion() {
		return PromotionBump
	}

	if m == mo.killers[ply][0] {
		return KillerScore1
	}
	if m == mo.killers[ply][1] {
		return KillerScore2
	}

	return mo.history[m.From()][m.To()]
}

// PickMove selects the best remaining move and swaps it to position
// index, enabling lazy move sorting.
func PickMove(moves *board.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// UpdateKillers records a quiet move that caused a beta cutoff at ply.
func (mo *MoveOrderer) UpdateKillers(m board.Move, ply int) {
	if ply >= MaxPly {
		return
	}
	if mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

// UpdateHistory adds depth^2 to the history score for a quiet move
// that caused a beta cutoff. history[from][to] is monotonically
// non-decreasing within a game: there is no decay or overflow halving,
// since either would let a later-searched, equally-good quiet move
// score lower than an earlier one purely from table aging.
func (mo *MoveOrderer) UpdateHistory(m board.Move, depth int) {
	from, to := m.From(), m.To()
	mo.history[from][to] += depth * depth
}

// GetHistoryScore returns the raw history score for a move.
func (mo *MoveOrderer) GetHistoryScore(m board.Move) int {
	return mo.history[m.From()][m.To()]
}
