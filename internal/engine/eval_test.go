package engine

import (
	"strings"
	"testing"

	"github.com/hailam/chessmind/internal/board"
)

// mirrorFEN swaps colors and flips ranks: White's position becomes
// Black's and vice versa, with side to move, castling rights, and the
// en-passant square adjusted to match.
func mirrorFEN(t *testing.T, fen string) string {
	t.Helper()
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		t.Fatalf("malformed FEN: %q", fen)
	}

	ranks := strings.Split(fields[0], "/")
	mirrored := make([]string, len(ranks))
	for i, rank := range ranks {
		var sb strings.Builder
		for _, ch := range rank {
			switch {
			case ch >= 'a' && ch <= 'z':
				sb.WriteRune(ch - 'a' + 'A')
			case ch >= 'A' && ch <= 'Z':
				sb.WriteRune(ch - 'A' + 'a')
			default:
				sb.WriteRune(ch)
			}
		}
		mirrored[len(ranks)-1-i] = sb.String()
	}

	side := "w"
	if fields[1] == "w" {
		side = "b"
	}

	castling := fields[2]
	if castling != "-" {
		var white, black string
		for _, ch := range castling {
			switch ch {
			case 'K':
				black += "k"
			case 'Q':
				black += "q"
			case 'k':
				white += "K"
			case 'q':
				white += "Q"
			}
		}
		castling = white + black
		if castling == "" {
			castling = "-"
		}
	}

	ep := fields[3]
	if ep != "-" {
		rank := ep[1]
		if rank == '3' {
			rank = '6'
		} else {
			rank = '3'
		}
		ep = string(ep[0]) + string(rank)
	}

	return strings.Join([]string{strings.Join(mirrored, "/"), side, castling, ep, fields[4], fields[5]}, " ")
}

func TestEvaluateMirrorSymmetry(t *testing.T) {
	fens := []string{
		"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3",
		"rnbqkb1r/pp2pppp/3p1n2/8/3NP3/2N5/PPP2PPP/R1BQKB1R b KQkq - 0 5",
		"r2qkb1r/pb1n1ppp/1pn1p3/2ppP3/3P4/2PB1N2/PP1N1PPP/R1BQK2R w KQkq - 0 9",
		"8/5pk1/6p1/8/3B4/6P1/5PK1/8 w - - 0 1",
		"4r1k1/1pp2ppp/p7/3P4/8/1P3N2/P4PPP/4R1K1 b - - 0 20",
	}

	for _, fen := range fens {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("bad FEN %q: %v", fen, err)
		}
		mfen := mirrorFEN(t, fen)
		mpos, err := board.ParseFEN(mfen)
		if err != nil {
			t.Fatalf("bad mirrored FEN %q: %v", mfen, err)
		}

		score := Evaluate(pos, 0)
		mscore := Evaluate(mpos, 0)
		if score != -mscore {
			t.Errorf("eval not anti-symmetric for %q: %d vs mirrored %d", fen, score, mscore)
		}
	}
}

// A mate found closer to the root must score higher in absolute value
// than the same mate seen from deeper in the tree.
func TestMateDistanceOrdering(t *testing.T) {
	// Black is checkmated by the rook on a8.
	pos, err := board.ParseFEN("R5k1/5ppp/8/8/8/8/5PPP/6K1 b - - 0 1")
	if err != nil {
		t.Fatalf("bad FEN: %v", err)
	}
	if !pos.IsCheckmate() {
		t.Fatal("fixture is not checkmate")
	}

	prev := Evaluate(pos, 0)
	if prev != MateScore {
		t.Errorf("mate at root = %d, want %d", prev, MateScore)
	}
	for ply := 1; ply <= 6; ply++ {
		score := Evaluate(pos, ply)
		if score >= prev {
			t.Errorf("mate at ply %d scored %d, want strictly below %d", ply, score, prev)
		}
		if score < MateThreshold {
			t.Errorf("mate at ply %d scored %d, below the mate band", ply, score)
		}
		prev = score
	}
}

func TestGamePhase(t *testing.T) {
	tests := []struct {
		fen   string
		phase int
	}{
		{"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 24},
		{"rnbqkb1r/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 23}, // minus a knight
		{"rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 20}, // minus a queen
		{"4k3/8/8/8/8/8/8/Q3K3 w - - 0 1", 4},                            // KQ vs K
		{"4k3/8/8/8/8/8/8/R3K3 w - - 0 1", 2},                            // KR vs K
		{"4k3/pppppppp/8/8/8/8/PPPPPPPP/4K3 w - - 0 1", 0},               // pawns only
		{"4k3/8/8/8/8/8/8/4K3 w - - 0 1", 0},                             // bare kings
	}

	for _, tc := range tests {
		pos, err := board.ParseFEN(tc.fen)
		if err != nil {
			t.Fatalf("bad FEN %q: %v", tc.fen, err)
		}
		if got := CalculateGamePhase(pos); got != tc.phase {
			t.Errorf("phase(%q) = %d, want %d", tc.fen, got, tc.phase)
		}
	}
}

// Removing any single non-pawn, non-king piece must strictly decrease
// the phase once below the clamp.
func TestGamePhaseMonotonicUnderRemoval(t *testing.T) {
	base := "r1bqkb1r/pppppppp/2n2n2/8/8/2N2N2/PPPPPPPP/R1BQKB1R w - - 0 1"
	pos, err := board.ParseFEN(base)
	if err != nil {
		t.Fatalf("bad FEN: %v", err)
	}
	basePhase := CalculateGamePhase(pos)

	for c := board.White; c <= board.Black; c++ {
		for pt := board.Knight; pt <= board.Queen; pt++ {
			bb := pos.Pieces[c][pt]
			for bb != 0 {
				sq := bb.PopLSB()
				fen := removePieceFromFEN(t, base, sq)
				reduced, err := board.ParseFEN(fen)
				if err != nil {
					t.Fatalf("bad reduced FEN %q: %v", fen, err)
				}
				if got := CalculateGamePhase(reduced); got >= basePhase {
					t.Errorf("removing %s%s left phase %d, want < %d", pos.PieceAt(sq), sq, got, basePhase)
				}
			}
		}
	}
}

// removePieceFromFEN rebuilds a FEN with the piece at sq removed.
func removePieceFromFEN(t *testing.T, fen string, sq board.Square) string {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("bad FEN %q: %v", fen, err)
	}
	piece := pos.PieceAt(sq)
	if piece == board.NoPiece {
		t.Fatalf("no piece at %s in %q", sq, fen)
	}
	pos.Pieces[piece.Color()][piece.Type()] &^= board.Bitboard(1) << sq
	pos.Occupied[piece.Color()] &^= board.Bitboard(1) << sq
	pos.AllOccupied &^= board.Bitboard(1) << sq
	return pos.ToFEN()
}
