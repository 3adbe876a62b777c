package engine

import (
	"sync/atomic"

	"github.com/hailam/chessmind/internal/board"
)

// Search constants. MateScore/MateThreshold follow the White-relative
// convention: scores near +MateScore favor White, near -MateScore
// favor Black.
const (
	Infinity      = 100000
	MateScore     = 100000
	MateThreshold = 90000
	MaxPly        = 128
)

// PVTable stores the principal variation.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

// SearchStats counts per-iteration search events, reset at the start
// of each iterative-deepening iteration (see Reset) and read back by
// the engine for UCI "info" reporting.
type SearchStats struct {
	NodesSearched   uint64
	QuiescenceNodes uint64
	TTHits          uint64
	TTMisses        uint64
	TTCutoffs       uint64
	ABCutoffs       uint64
}

// Searcher performs the main alpha-beta search and its quiescence
// extension, scoring everything White-relative per the evaluator's
// contract.
type Searcher struct {
	pos       *board.Position
	tt        *TranspositionTable
	orderer   *MoveOrderer
	pawnTable *PawnTable

	nodes    uint64
	stopFlag atomic.Bool
	stats    SearchStats

	pv PVTable

	undoStack [MaxPly]board.UndoInfo

	// history is the game's Zobrist hash history including the search
	// root, used to detect repetition without relying on a position
	// -level API for it.
	history []uint64
}

// NewSearcher creates a new searcher sharing the given transposition
// table and pawn-structure cache.
func NewSearcher(tt *TranspositionTable, pawnTable *PawnTable) *Searcher {
	return &Searcher{
		tt:        tt,
		orderer:   NewMoveOrderer(),
		pawnTable: pawnTable,
	}
}

// eval is the searcher's evaluation entry point, routed through the
// shared pawn-structure cache.
func (s *Searcher) eval(ply int) int {
	return EvaluateWithPawnTable(s.pos, ply, s.pawnTable)
}

// Stop signals the search to stop.
func (s *Searcher) Stop() {
	s.stopFlag.Store(true)
}

// Reset prepares the searcher for a new search over pos, seeded with
// the game's hash history up to and including pos itself. Killers and
// history are deliberately left untouched: they are owned by the
// engine and persist across both iterative-deepening iterations and
// successive select_move calls within the same game; only ClearTT
// resets them.
//
// gameHistory is the caller's hash history up to and including the
// position about to be searched (its root). Callers (e.g. internal/uci)
// already append the root's own hash as the history's last element, so
// it is appended here only if missing, to avoid counting the root
// twice toward isRepetitionOrDraw's occurrence count.
func (s *Searcher) Reset(pos *board.Position, gameHistory []uint64) {
	s.pos = pos.Copy()
	s.stopFlag.Store(false)
	s.nodes = 0
	s.stats = SearchStats{}

	s.history = s.history[:0]
	s.history = append(s.history, gameHistory...)
	if len(s.history) == 0 || s.history[len(s.history)-1] != s.pos.Hash {
		s.history = append(s.history, s.pos.Hash)
	}
}

// ClearOrdering resets the killer and history tables to their initial
// (empty) state, used only by Engine.ClearTT at new-game reset.
func (s *Searcher) ClearOrdering() {
	s.orderer.Clear()
}

// Nodes returns the number of nodes searched.
func (s *Searcher) Nodes() uint64 {
	return s.nodes
}

// Stats returns the SearchStats accumulated since the last Reset.
func (s *Searcher) Stats() SearchStats {
	return s.stats
}

// Search performs a fixed-depth search from the current position,
// returning the best root move and its White-relative score.
func (s *Searcher) Search(pos *board.Position, depth int, gameHistory []uint64) (board.Move, int) {
	s.Reset(pos, gameHistory)

	alpha, beta := -Infinity, Infinity
	if s.pos.SideToMove == board.White {
		score, bestMove := s.searchMax(depth, 0, alpha, beta)
		return bestMove, score
	}
	score, bestMove := s.searchMin(depth, 0, alpha, beta)
	return bestMove, score
}

// GetPV returns the principal variation from the last search.
func (s *Searcher) GetPV() []board.Move {
	pv := make([]board.Move, s.pv.length[0])
	copy(pv, s.pv.moves[0][:s.pv.length[0]])
	return pv
}

// isRepetitionOrDraw is the anti-shuffle draw gate: 50-move rule,
// insufficient material, or a position with at least 2 prior
// occurrences since the last irreversible move, i.e. a true
// threefold (3 total occurrences counting the current position).
func (s *Searcher) isRepetitionOrDraw() bool {
	if s.pos.HalfMoveClock >= 100 {
		return true
	}
	if s.pos.IsInsufficientMaterial() {
		return true
	}

	// s.history's last element is always the current position itself
	// (see Reset and the append in searchMax/searchMin); the window of
	// positions that could repeat it runs from there back through the
	// position the halfmove clock last reset at (inclusive), which is
	// HalfMoveClock entries earlier, at index len(s.history)-1-HalfMoveClock.
	limit := len(s.history) - 1 - s.pos.HalfMoveClock
	if limit < 0 {
		limit = 0
	}
	hash := s.pos.Hash
	count := 0
	for i := len(s.history) - 2; i >= limit; i-- {
		if s.history[i] == hash {
			count++
			if count >= 2 {
				return true
			}
		}
	}
	return false
}

// spliceTTMove moves ttMove to the front of moves/scores if present
// and legal, leaving the remainder unordered for the caller to sort.
func spliceTTMove(moves *board.MoveList, scores []int, ttMove board.Move) {
	if ttMove == board.NoMove {
		return
	}
	for i := 0; i < moves.Len(); i++ {
		if moves.Get(i) == ttMove {
			if i != 0 {
				moves.Swap(0, i)
				scores[0], scores[i] = scores[i], scores[0]
			}
			return
		}
	}
}

// probeTT probes the transposition table, returning the stored move
// (if any) for splicing and whether alpha/beta were narrowed enough
// to cut off immediately.
func (s *Searcher) probeTT(depth, ply, alphaOrig, betaOrig int) (ttMove board.Move, alpha, beta int, cutoff bool, cutoffScore int) {
	alpha, beta = alphaOrig, betaOrig
	if ply == 0 {
		return board.NoMove, alpha, beta, false, 0
	}

	entry, found := s.tt.Probe(s.pos.Hash)
	if !found {
		s.stats.TTMisses++
		return board.NoMove, alpha, beta, false, 0
	}
	s.stats.TTHits++
	ttMove = entry.BestMove

	if int(entry.Depth) < depth {
		return ttMove, alpha, beta, false, 0
	}

	score := AdjustScoreForProbe(int(entry.Score), ply)
	switch entry.Flag {
	case TTExact:
		s.stats.TTCutoffs++
		return ttMove, alpha, beta, true, score
	case TTLowerBound:
		if score > alpha {
			alpha = score
		}
	case TTUpperBound:
		if score < beta {
			beta = score
		}
	}
	if alpha >= beta {
		s.stats.TTCutoffs++
		return ttMove, alpha, beta, true, score
	}
	return ttMove, alpha, beta, false, 0
}

// searchMax and searchMin are an explicit minimax rather than negamax,
// since evaluate() is already White-relative: searchMax is used
// whenever White is to move, searchMin whenever Black is to move.
func (s *Searcher) searchMax(depth, ply, alpha, beta int) (int, board.Move) {
	if s.nodes&4095 == 0 && s.stopFlag.Load() {
		return 0, board.NoMove
	}
	s.nodes++
	s.stats.NodesSearched++
	s.pv.length[ply] = ply

	if ply > 0 && s.isRepetitionOrDraw() {
		return 0, board.NoMove
	}
	if s.pos.IsCheckmate() || s.pos.IsStalemate() || s.pos.IsInsufficientMaterial() {
		return s.eval(ply), board.NoMove
	}
	if depth == 0 {
		return s.quiescence(alpha, beta, ply, 0), board.NoMove
	}

	alphaOriginal, betaOriginal := alpha, beta
	ttMove, alpha, beta, cutoff, cutoffScore := s.probeTT(depth, ply, alpha, beta)
	if cutoff {
		return cutoffScore, ttMove
	}

	moves := s.pos.GenerateLegalMoves()
	scores := s.orderer.ScoreMoves(s.pos, moves, ply)
	spliceTTMove(moves, scores, ttMove)

	bestScore := -Infinity
	bestMove := board.NoMove

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		s.undoStack[ply] = s.pos.MakeMove(move)
		if !s.undoStack[ply].Valid {
			s.pos.UnmakeMove(move, s.undoStack[ply])
			continue
		}
		s.history = append(s.history, s.pos.Hash)

		childScore, _ := s.searchMin(depth-1, ply+1, alpha, beta)

		s.history = s.history[:len(s.history)-1]
		s.pos.UnmakeMove(move, s.undoStack[ply])

		if s.stopFlag.Load() {
			return 0, board.NoMove
		}

		if childScore > bestScore {
			bestScore = childScore
			bestMove = move
		}
		if childScore > alpha {
			alpha = childScore
			s.pv.moves[ply][ply] = move
			for j := ply + 1; j < s.pv.length[ply+1]; j++ {
				s.pv.moves[ply][j] = s.pv.moves[ply+1][j]
			}
			s.pv.length[ply] = s.pv.length[ply+1]
		}

		if alpha >= beta {
			s.stats.ABCutoffs++
			if move.IsQuiet(s.pos) {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(move, depth)
			}
			break
		}
	}

	flag := ttFlagFromBounds(bestScore, alphaOriginal, betaOriginal)
	s.tt.Store(s.pos.Hash, depth, AdjustScoreForStore(bestScore, ply), flag, bestMove)

	return bestScore, bestMove
}

func (s *Searcher) searchMin(depth, ply, alpha, beta int) (int, board.Move) {
	if s.nodes&4095 == 0 && s.stopFlag.Load() {
		return 0, board.NoMove
	}
	s.nodes++
	s.stats.NodesSearched++
	s.pv.length[ply] = ply

	if ply > 0 && s.isRepetitionOrDraw() {
		return 0, board.NoMove
	}
	if s.pos.IsCheckmate() || s.pos.IsStalemate() || s.pos.IsInsufficientMaterial() {
		return s.eval(ply), board.NoMove
	}
	if depth == 0 {
		return s.quiescence(alpha, beta, ply, 0), board.NoMove
	}

	alphaOriginal, betaOriginal := alpha, beta
	ttMove, alpha, beta, cutoff, cutoffScore := s.probeTT(depth, ply, alpha, beta)
	if cutoff {
		return cutoffScore, ttMove
	}

	moves := s.pos.GenerateLegalMoves()
	scores := s.orderer.ScoreMoves(s.pos, moves, ply)
	spliceTTMove(moves, scores, ttMove)

	bestScore := Infinity
	bestMove := board.NoMove

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		s.undoStack[ply] = s.pos.MakeMove(move)
		if !s.undoStack[ply].Valid {
			s.pos.UnmakeMove(move, s.undoStack[ply])
			continue
		}
		s.history = append(s.history, s.pos.Hash)

		childScore, _ := s.searchMax(depth-1, ply+1, alpha, beta)

		s.history = s.history[:len(s.history)-1]
		s.pos.UnmakeMove(move, s.undoStack[ply])

		if s.stopFlag.Load() {
			return 0, board.NoMove
		}

		if childScore < bestScore {
			bestScore = childScore
			bestMove = move
		}
		if childScore < beta {
			beta = childScore
			s.pv.moves[ply][ply] = move
			for j := ply + 1; j < s.pv.length[ply+1]; j++ {
				s.pv.moves[ply][j] = s.pv.moves[ply+1][j]
			}
			s.pv.length[ply] = s.pv.length[ply+1]
		}

		if beta <= alpha {
			s.stats.ABCutoffs++
			if move.IsQuiet(s.pos) {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(move, depth)
			}
			break
		}
	}

	flag := ttFlagFromBounds(bestScore, alphaOriginal, betaOriginal)
	s.tt.Store(s.pos.Hash, depth, AdjustScoreForStore(bestScore, ply), flag, bestMove)

	return bestScore, bestMove
}

// ttFlagFromBounds determines the store flag from the final score
// against the ORIGINAL alpha/beta saved before TT narrowing.
func ttFlagFromBounds(score, alphaOriginal, betaOriginal int) TTFlag {
	if score <= alphaOriginal {
		return TTUpperBound
	}
	if score >= betaOriginal {
		return TTLowerBound
	}
	return TTExact
}

// quiescence searches tactical replies until the position is quiet:
// captures/promotions only (all legal moves when in check), stand-pat
// bounds, and delta pruning.
func (s *Searcher) quiescence(alpha, beta, ply, qsDepth int) int {
	if s.stopFlag.Load() {
		return 0
	}
	s.nodes++
	s.stats.NodesSearched++
	s.stats.QuiescenceNodes++

	inCheck := s.pos.InCheck()
	depthCap := 12
	if inCheck {
		depthCap = 6
	}
	if qsDepth >= depthCap {
		return s.eval(ply)
	}
	if s.pos.IsCheckmate() || s.pos.IsStalemate() || s.pos.IsInsufficientMaterial() {
		return s.eval(ply)
	}

	maximizing := s.pos.SideToMove == board.White
	standPat := s.eval(ply)

	if !inCheck {
		if maximizing {
			if standPat >= beta {
				return beta
			}
			if standPat > alpha {
				alpha = standPat
			}
		} else {
			if standPat <= alpha {
				return alpha
			}
			if standPat < beta {
				beta = standPat
			}
		}
	}

	var moves *board.MoveList
	if inCheck {
		moves = s.pos.GenerateLegalMoves()
	} else {
		moves = s.pos.GenerateCaptures()
	}
	if moves.Len() == 0 {
		return standPat
	}

	phase := CalculateGamePhase(s.pos)
	scores := s.orderer.ScoreMoves(s.pos, moves, ply)

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if !inCheck && phase > 4 && !move.IsPromotion() {
			victimValue := 0
			if move.IsEnPassant() {
				victimValue = PawnValue
			} else if captured := s.pos.PieceAt(move.To()); captured != board.NoPiece {
				victimValue = pieceValues[captured.Type()]
			}
			if maximizing {
				if standPat+victimValue+100 < alpha {
					continue
				}
			} else {
				if standPat-victimValue-100 > beta {
					continue
				}
			}
		}

		undo := s.pos.MakeMove(move)
		if !undo.Valid {
			s.pos.UnmakeMove(move, undo)
			continue
		}

		score := s.quiescence(alpha, beta, ply+1, qsDepth+1)

		s.pos.UnmakeMove(move, undo)

		if maximizing {
			if score >= beta {
				return beta
			}
			if score > alpha {
				alpha = score
			}
		} else {
			if score <= alpha {
				return alpha
			}
			if score < beta {
				beta = score
			}
		}
	}

	if maximizing {
		return alpha
	}
	return beta
}
