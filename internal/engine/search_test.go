package engine

import (
	"testing"
	"time"

	"github.com/hailam/chessmind/internal/board"
)

// naiveMinimax is a plain minimax with no alpha-beta pruning, no
// transposition table, and no move ordering, sharing the search's
// terminal rules and its quiescence leaf handler. Used as the ground
// truth the pruned search must agree with.
func naiveMinimax(qs *Searcher, pos *board.Position, depth, ply int) int {
	if ply > 0 {
		if pos.HalfMoveClock >= 100 || pos.IsInsufficientMaterial() {
			return 0
		}
	}
	if pos.IsCheckmate() || pos.IsStalemate() || pos.IsInsufficientMaterial() {
		return Evaluate(pos, ply)
	}
	if depth == 0 {
		qs.Reset(pos, nil)
		return qs.quiescence(-Infinity, Infinity, ply, 0)
	}

	moves := pos.GenerateLegalMoves()
	maximizing := pos.SideToMove == board.White
	best := -Infinity
	if !maximizing {
		best = Infinity
	}
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		undo := pos.MakeMove(m)
		if !undo.Valid {
			pos.UnmakeMove(m, undo)
			continue
		}
		score := naiveMinimax(qs, pos, depth-1, ply+1)
		pos.UnmakeMove(m, undo)

		if maximizing {
			if score > best {
				best = score
			}
		} else if score < best {
			best = score
		}
	}
	return best
}

func TestAlphaBetaMatchesNaiveMinimax(t *testing.T) {
	tests := []struct {
		fen   string
		depth int
	}{
		{"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 3},
		{"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3", 2},
		{"8/5pk1/6p1/8/4B3/6P1/5PK1/8 w - - 0 1", 3},
	}

	for _, tc := range tests {
		pos, err := board.ParseFEN(tc.fen)
		if err != nil {
			t.Fatalf("bad FEN %q: %v", tc.fen, err)
		}

		searcher := NewSearcher(NewTranspositionTable(8), NewPawnTable(1))
		_, pruned := searcher.Search(pos.Copy(), tc.depth, []uint64{pos.Hash})

		qs := NewSearcher(NewTranspositionTable(1), NewPawnTable(1))
		naive := naiveMinimax(qs, pos.Copy(), tc.depth, 0)

		if pruned != naive {
			t.Errorf("%q depth %d: alpha-beta = %d, naive minimax = %d", tc.fen, tc.depth, pruned, naive)
		}
	}
}

// A winning side must not walk into a threefold repetition: a move
// whose resulting position already occurred twice in the game history
// scores 0 inside the search and loses to any move that keeps the
// material advantage.
func TestSearchAvoidsRepetition(t *testing.T) {
	pos, err := board.ParseFEN("7k/8/8/8/8/8/8/R3K3 w - - 20 40")
	if err != nil {
		t.Fatalf("bad FEN: %v", err)
	}

	repeating := board.NewMove(board.A1, board.A2)
	child := pos.Copy()
	undo := child.MakeMove(repeating)
	if !undo.Valid {
		t.Fatalf("move %s unexpectedly illegal", repeating)
	}

	// The position after Ra2 has already been on the board twice.
	history := []uint64{child.Hash, child.Hash, pos.Hash}

	eng := NewEngine(8, 0)
	move, score := eng.SelectMove(pos, 0, 0, 200*time.Millisecond, history)

	if move == repeating {
		t.Errorf("search chose the repeating move %s", repeating)
	}
	if score < 300 {
		t.Errorf("score = %d, want the rook advantage preserved", score)
	}
}

// An incomplete time-bounded iteration must not discard the result of
// the last completed depth.
func TestTimeBoundedReturnsCompletedDepth(t *testing.T) {
	pos, err := board.ParseFEN("8/5pk1/6p1/8/3B4/6P1/5PK1/8 w - - 0 1")
	if err != nil {
		t.Fatalf("bad FEN: %v", err)
	}

	eng := NewEngine(8, 0)
	move, _ := eng.SelectMove(pos, 0, 0, time.Millisecond, []uint64{pos.Hash})
	if move == board.NoMove {
		t.Error("time-bounded search returned no move despite the minimum-depth guarantee")
	}
}

func TestQuiescenceResolvesHangingCapture(t *testing.T) {
	// White queen en prise on d4 with Black to move: the static eval
	// has White a queen up, but quiescence must see exd4.
	pos, err := board.ParseFEN("4k3/8/8/4p3/3Q4/8/8/4K3 b - - 0 1")
	if err != nil {
		t.Fatalf("bad FEN: %v", err)
	}

	s := NewSearcher(NewTranspositionTable(1), NewPawnTable(1))
	s.Reset(pos, nil)
	score := s.quiescence(-Infinity, Infinity, 0, 0)

	if score >= -50 {
		t.Errorf("quiescence score = %d, want Black ahead after capturing the queen", score)
	}
}
