package engine

import (
	"log"
	"time"

	"github.com/hailam/chessmind/internal/board"
	"github.com/hailam/chessmind/internal/store"
)

// SearchInfo reports progress for a completed (or in-progress)
// iterative-deepening depth, suitable for a UCI "info" line.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int
	Stats    SearchStats

	// TTHitRate is the transposition table's lifetime hit rate (percent),
	// tracked since the table was created or last cleared.
	TTHitRate float64
	// BestMoveHistory is the history table's value at this depth's best
	// move's from/to squares, whatever kind of move it is.
	BestMoveHistory int
}

// defaultFixedDepth is the fixed depth used in fixed-depth mode
// (opening/middlegame) when NewEngine's caller passes defaultDepth <= 0
// and the caller doesn't override it per-call via targetDepth.
const defaultFixedDepth = 5

// minEndgameDepth is the minimum completed depth guaranteed in
// time-bounded mode before the time check is allowed to abort an
// iteration.
const minEndgameDepth = 5

// endgameDepthCap is the high iterative-deepening ceiling used in
// time-bounded mode.
const endgameDepthCap = 99

// phaseEndgameThreshold: phase <= this value selects time-bounded mode.
const phaseEndgameThreshold = 12

// Engine owns the mutable search state (transposition table, pawn
// hash, searcher) for a single line of play. It is not safe for
// concurrent use by multiple goroutines: callers that need other I/O
// while searching should run select_move on a dedicated goroutine.
type Engine struct {
	tt        *TranspositionTable
	pawnTable *PawnTable
	searcher  *Searcher

	defaultDepth int

	// OnInfo, if set, is called after every completed iterative
	// -deepening depth.
	OnInfo func(SearchInfo)
}

// NewEngine creates a chess engine with a transposition table sized
// from ttSizeMB. defaultDepth is the standing fixed-mode search depth
// used whenever a SelectMove call doesn't override it via targetDepth.
// defaultDepth <= 0 falls back to defaultFixedDepth.
func NewEngine(ttSizeMB int, defaultDepth int) *Engine {
	if defaultDepth <= 0 {
		defaultDepth = defaultFixedDepth
	}
	tt := NewTranspositionTable(ttSizeMB)
	pawnTable := NewPawnTable(4)
	e := &Engine{
		tt:           tt,
		pawnTable:    pawnTable,
		searcher:     NewSearcher(tt, pawnTable),
		defaultDepth: defaultDepth,
	}
	log.Printf("[Engine] transposition table sized for %dMB (%d entries)", ttSizeMB, tt.Size())
	return e
}

// ClearTT empties the transposition table, pawn hash, and the killer/
// history move-ordering tables, resetting all engine-owned state to
// its initial value. Used by "ucinewgame"; invoked once at game start
// and never between moves of the same game.
func (e *Engine) ClearTT() {
	e.tt.Clear()
	e.pawnTable.Clear()
	e.searcher.ClearOrdering()
}

// SaveSnapshot persists the current transposition table to s, for a
// correspondence-play supervisor that restarts the process between
// moves.
func (e *Engine) SaveSnapshot(s *store.Store) error {
	return s.SaveTT(e.tt)
}

// LoadSnapshot restores a previously saved transposition table from
// s. A missing snapshot is not an error; the table is left empty.
func (e *Engine) LoadSnapshot(s *store.Store) error {
	return s.LoadTT(e.tt)
}

// CalculateGamePhase exposes the game-phase weight (0..24) for a
// position, used by the controller's mode selection and by UCI front
// ends that want to report it.
func (e *Engine) CalculateGamePhase(pos *board.Position) int {
	return CalculateGamePhase(pos)
}

// SelectMove runs the search controller: mode selection by game
// phase, iterative deepening with aspiration windows, and early exit
// on a proven mate. endgameTimeLimit bounds time-bounded
// (endgame) mode between root moves. timeLimit, if positive, is an
// overall backstop checked only between completed depths (never
// inside an iteration, including in fixed-depth mode, where no other
// time check applies). If targetDepth > 0 it overrides the configured
// fixed depth, and in time-bounded mode it caps the deepest iteration.
func (e *Engine) SelectMove(pos *board.Position, timeLimit time.Duration, targetDepth int, endgameTimeLimit time.Duration, gameHistory []uint64) (board.Move, int) {
	return e.selectMove(pos, timeLimit, targetDepth, endgameTimeLimit, gameHistory, nil)
}

// SelectMoveStoppable is SelectMove but interruptible: closing stop
// aborts the current iteration between root moves (in either mode),
// returning the result of the last completed depth.
func (e *Engine) SelectMoveStoppable(pos *board.Position, timeLimit time.Duration, targetDepth int, endgameTimeLimit time.Duration, gameHistory []uint64, stop <-chan struct{}) (board.Move, int) {
	return e.selectMove(pos, timeLimit, targetDepth, endgameTimeLimit, gameHistory, stop)
}

// selectMove is SelectMove's implementation, parameterized by a stop
// channel so callers (e.g. the UCI "stop" command) can interrupt a
// search between root moves.
func (e *Engine) selectMove(pos *board.Position, timeLimit time.Duration, targetDepth int, endgameTimeLimit time.Duration, gameHistory []uint64, stop <-chan struct{}) (board.Move, int) {
	phase := CalculateGamePhase(pos)
	fixedDepthMode := phase > phaseEndgameThreshold

	fixedDepth := e.defaultDepth
	if targetDepth > 0 {
		fixedDepth = targetDepth
	}

	maxDepth := fixedDepth
	if !fixedDepthMode && targetDepth <= 0 {
		maxDepth = endgameDepthCap
	}

	start := time.Now()

	// tm tracks the time-bounded mode's soft/hard budget and shrinks or
	// grows the soft budget as the root's best move stabilizes or
	// flip-flops across depths; nil in fixed-depth mode, where no time
	// check applies at all.
	var tm *TimeManager
	if !fixedDepthMode && endgameTimeLimit > 0 {
		tm = &TimeManager{optimumTime: endgameTimeLimit, maximumTime: endgameTimeLimit, startTime: start}
	}

	var bestMove board.Move
	var bestScore int
	havePrevScore := false
	var prevScore int
	prevBestMove := board.NoMove
	stableDepths := 0
	changedDepths := 0

	for depth := 1; depth <= maxDepth; depth++ {
		alpha, beta := -Infinity, Infinity
		alphaOriginal, betaOriginal := alpha, beta
		if depth >= 2 && havePrevScore {
			alpha = prevScore - 50
			beta = prevScore + 50
			alphaOriginal, betaOriginal = alpha, beta
		}

		move, score, completed := e.runIteration(pos, depth, alpha, beta, gameHistory, tm, stop)

		if !completed {
			if fixedDepthMode {
				// Unexpected in fixed-depth mode; keep the last
				// completed result.
				break
			}
			if depth <= minEndgameDepth {
				// Minimum-depth guarantee: do not abort before it,
				// even if time is exceeded.
				move, score, completed = e.runIteration(pos, depth, -Infinity, Infinity, gameHistory, nil, stop)
				if !completed {
					break
				}
			} else {
				break
			}
		} else if alpha != -Infinity || beta != Infinity {
			if score <= alphaOriginal || score >= betaOriginal {
				// The full-window re-search is covered by the same
				// minimum-depth guarantee as the first pass: below it,
				// run to completion regardless of elapsed time.
				retryTM := tm
				if depth <= minEndgameDepth {
					retryTM = nil
				}
				move, score, completed = e.runIteration(pos, depth, -Infinity, Infinity, gameHistory, retryTM, stop)
				if !completed {
					break
				}
			}
		}

		bestMove, bestScore = move, score
		havePrevScore = true
		prevScore = score

		if tm != nil {
			if move == prevBestMove {
				stableDepths++
				changedDepths = 0
				tm.AdjustForStability(stableDepths)
			} else {
				changedDepths++
				stableDepths = 0
				tm.AdjustForInstability(changedDepths)
			}
			prevBestMove = move
		}

		if e.OnInfo != nil {
			e.OnInfo(SearchInfo{
				Depth:           depth,
				Score:           bestScore,
				Nodes:           e.searcher.Nodes(),
				Time:            time.Since(start),
				PV:              e.searcher.GetPV(),
				HashFull:        e.tt.HashFull(),
				Stats:           e.searcher.Stats(),
				TTHitRate:       e.tt.HitRate(),
				BestMoveHistory: e.searcher.orderer.GetHistoryScore(bestMove),
			})
		}

		if abs(bestScore) >= MateThreshold {
			break
		}
		if depth >= minEndgameDepth && tm != nil && tm.PastOptimum() {
			break
		}
		if timeLimit > 0 && time.Since(start) >= timeLimit {
			break
		}
	}

	return bestMove, bestScore
}

// runIteration performs one depth of the root search, splicing the TT
// best move to the front. tm, when non-nil, bounds the time spent
// between root moves; nil disables the check (fixed-depth mode and
// the minimum-depth-guarantee retry both search to completion
// regardless of elapsed time).
func (e *Engine) runIteration(pos *board.Position, depth, alpha, beta int, gameHistory []uint64, tm *TimeManager, stop <-chan struct{}) (board.Move, int, bool) {
	e.searcher.Reset(pos, gameHistory)
	s := e.searcher
	s.pv.length[0] = 0

	maximizing := pos.SideToMove == board.White

	var ttMove board.Move
	if entry, found := s.tt.Probe(pos.Hash); found {
		ttMove = entry.BestMove
	}

	moves := pos.GenerateLegalMoves()
	if moves.Len() == 0 {
		return board.NoMove, Evaluate(pos, 0), true
	}
	scores := s.orderer.ScoreMoves(pos, moves, 0)
	spliceTTMove(moves, scores, ttMove)

	bestScore := -Infinity
	if !maximizing {
		bestScore = Infinity
	}
	bestMove := moves.Get(0)

	for i := 0; i < moves.Len(); i++ {
		if tm != nil && i > 0 && tm.ShouldStop() {
			return bestMove, bestScore, false
		}
		select {
		case <-stop:
			return bestMove, bestScore, false
		default:
		}

		PickMove(moves, scores, i)
		move := moves.Get(i)

		undo := s.pos.MakeMove(move)
		if !undo.Valid {
			s.pos.UnmakeMove(move, undo)
			continue
		}
		s.history = append(s.history, s.pos.Hash)

		var score int
		if maximizing {
			score, _ = s.searchMin(depth-1, 1, alpha, beta)
		} else {
			score, _ = s.searchMax(depth-1, 1, alpha, beta)
		}

		s.history = s.history[:len(s.history)-1]
		s.pos.UnmakeMove(move, undo)

		improved := false
		if maximizing {
			if score > bestScore {
				bestScore = score
				bestMove = move
				improved = true
			}
			if score > alpha {
				alpha = score
			}
		} else {
			if score < bestScore {
				bestScore = score
				bestMove = move
				improved = true
			}
			if score < beta {
				beta = score
			}
		}
		if improved {
			s.pv.moves[0][0] = move
			for j := 1; j < s.pv.length[1]; j++ {
				s.pv.moves[0][j] = s.pv.moves[1][j]
			}
			s.pv.length[0] = s.pv.length[1]
		}
	}

	return bestMove, bestScore, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Perft counts leaf nodes at the given depth, a self-test for the
// move generator underneath the search.
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	moves := pos.GenerateLegalMoves()
	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		if undo.Valid {
			nodes += e.Perft(pos, depth-1)
		}
		pos.UnmakeMove(move, undo)
	}
	return nodes
}

// Evaluate exposes the static evaluator for UCI's "d" / eval
// diagnostics.
func (e *Engine) Evaluate(pos *board.Position) int {
	return EvaluateWithPawnTable(pos, 0, e.pawnTable)
}

// ScoreToString renders a score for display, converting mate-range
// scores to "mate N" form.
func ScoreToString(score int) string {
	if score >= MateThreshold {
		plies := MateScore - score
		return "mate " + itoa((plies+1)/2)
	}
	if score <= -MateThreshold {
		plies := MateScore + score
		return "mate -" + itoa((plies+1)/2)
	}
	return "cp " + itoa(score)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
