// Package engine implements the chess AI search engine.
package engine

import (
	"github.com/hailam/chessmind/internal/board"
)

// Material values, in centipawns.
const (
	PawnValue   = 100
	KnightValue = 320
	BishopValue = 330
	RookValue   = 500
	QueenValue  = 900
	KingValue   = 20000
)

// Piece values array for quick lookup
var pieceValues = [7]int{PawnValue, KnightValue, BishopValue, RookValue, QueenValue, KingValue, 0}

// Tempo bonus - small advantage for having the move
const tempoBonus = 10

// Passed pawn bonus by relative rank (index 1 = still on its starting
// rank, index 6 = one step from promotion).
var passedPawnRankBonus = [8]int{0, 10, 20, 40, 70, 120, 200, 0}

const (
	passedPawnProtected = 15 // defended by a friendly pawn
	passedPawnConnected = 20 // a passed friend on an adjacent file
	passedPawnClearPath = 30 // nothing between the pawn and promotion
)

// Mobility weights per piece type, indexed by PieceType.
var (
	mobilityMgWeight = [6]int{0, 4, 5, 2, 1, 0}
	mobilityEgWeight = [6]int{0, 3, 4, 4, 2, 0}
)

// King-zone attack weights per attacker type.
var kingAttackWeight = [6]int{0, 20, 20, 40, 80, 0}

const (
	pawnShieldBonus      = 10  // shield pawn in front of the king
	pawnShieldMissing    = -15 // no friendly pawn at all on the file
	openFileNearKing     = -20
	semiOpenFileNearKing = -10
)

const (
	bishopPairMg = 25
	bishopPairEg = 50
)

const (
	rookOpenFileMg     = 20
	rookOpenFileEg     = 25
	rookSemiOpenFileMg = 10
	rookSemiOpenFileEg = 15
)

const (
	doubledPawnMg  = -15
	doubledPawnEg  = -20
	isolatedPawnMg = -20
	isolatedPawnEg = -25
	backwardPawnMg = -15
	backwardPawnEg = -10
)

// adjacentFiles[f] masks the files either side of f.
var adjacentFiles [8]board.Bitboard

func init() {
	for f := 0; f < 8; f++ {
		if f > 0 {
			adjacentFiles[f] |= board.FileMask[f-1]
		}
		if f < 7 {
			adjacentFiles[f] |= board.FileMask[f+1]
		}
	}
}

// Piece-Square Tables (PST) for positional evaluation
// Values are from White's perspective; mirrored for Black

// Pawn PST - encourages central control and advancement
var pawnPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

// Knight PST - encourages central positioning
var knightPST = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

// Bishop PST - encourages central diagonals
var bishopPST = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

// Rook PST - encourages 7th rank and open files
var rookPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

// Queen PST - slight central preference
var queenPST = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

// King PST (middlegame) - encourages castling
var kingMidgamePST = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

// King PST (endgame) - king should be active
var kingEndgamePST = [64]int{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}

// All PSTs combined for easy lookup
var psts = [...][64]int{
	pawnPST, knightPST, bishopPST, rookPST, queenPST, kingMidgamePST,
}

// MaxPhase is the game-phase weight of a full non-pawn, non-king set
// for both sides (2 knights + 2 bishops + 2 rooks*2 + 1 queen*4, per side).
const MaxPhase = 24

// CalculateGamePhase returns an integer 0..24 derived only from
// non-pawn, non-king material: Knight=1, Bishop=1, Rook=2, Queen=4,
// summed over both colors and clamped to MaxPhase.
func CalculateGamePhase(pos *board.Position) int {
	phase := 0
	for c := board.White; c <= board.Black; c++ {
		phase += pos.Pieces[c][board.Knight].PopCount()
		phase += pos.Pieces[c][board.Bishop].PopCount()
		phase += 2 * pos.Pieces[c][board.Rook].PopCount()
		phase += 4 * pos.Pieces[c][board.Queen].PopCount()
	}
	if phase > MaxPhase {
		phase = MaxPhase
	}
	return phase
}

// materialAndPST returns the White-relative middlegame and endgame
// scores (material + piece-square tables) and the game phase.
func materialAndPST(pos *board.Position) (mgScore, egScore, phase int) {
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}

		for pt := board.Pawn; pt <= board.King; pt++ {
			bb := pos.Pieces[c][pt]
			for bb != 0 {
				sq := bb.PopLSB()

				mgScore += sign * pieceValues[pt]
				egScore += sign * pieceValues[pt]

				// Mirror vertically for Black so both sides are looked
				// up from White's perspective (square 0 = a1, 63 = h8).
				pstSq := sq
				if c == board.Black {
					pstSq = sq.Mirror()
				}

				if pt == board.King {
					mgScore += sign * kingMidgamePST[pstSq]
					egScore += sign * kingEndgamePST[pstSq]
				} else {
					pstValue := psts[pt][pstSq]
					mgScore += sign * pstValue
					egScore += sign * pstValue
				}

				switch pt {
				case board.Knight, board.Bishop:
					phase++
				case board.Rook:
					phase += 2
				case board.Queen:
					phase += 4
				}
			}
		}
	}
	if phase > MaxPhase {
		phase = MaxPhase
	}
	return mgScore, egScore, phase
}

// tapered is a middlegame/endgame score pair, blended by game phase
// at the end of evaluation.
type tapered struct {
	mg, eg int
}

func (t *tapered) add(o tapered) {
	t.mg += o.mg
	t.eg += o.eg
}

func (t *tapered) sub(o tapered) {
	t.mg -= o.mg
	t.eg -= o.eg
}

// Evaluate returns the static evaluation of a quiescent position, from
// White's perspective (positive favors White), at the given distance
// from the search root.
func Evaluate(pos *board.Position, plyFromRoot int) int {
	return evaluate(pos, plyFromRoot, nil)
}

// EvaluateWithPawnTable is like Evaluate but caches the pawn structure
// score by pawn key, avoiding recomputation across nodes that share
// the same pawn skeleton.
func EvaluateWithPawnTable(pos *board.Position, plyFromRoot int, pawnTable *PawnTable) int {
	return evaluate(pos, plyFromRoot, pawnTable)
}

func evaluate(pos *board.Position, plyFromRoot int, pawnTable *PawnTable) int {
	if pos.IsCheckmate() {
		if pos.SideToMove == board.White {
			return -MateScore + plyFromRoot
		}
		return MateScore - plyFromRoot
	}
	if pos.IsStalemate() || pos.IsInsufficientMaterial() {
		return 0
	}

	mgScore, egScore, phase := materialAndPST(pos)
	score := tapered{mgScore, egScore}
	score.add(cachedPawnDefects(pos, pawnTable))

	for color := board.White; color <= board.Black; color++ {
		var side tapered
		side.add(passedPawnScore(pos, color))
		side.add(mobilityScore(pos, color))
		side.add(kingShelterScore(pos, color))
		side.add(bishopPairScore(pos, color))
		side.add(rookFileScore(pos, color))
		if color == board.White {
			score.add(side)
		} else {
			score.sub(side)
		}
	}

	blended := (score.mg*phase + score.eg*(MaxPhase-phase)) / MaxPhase
	if pos.SideToMove == board.White {
		return blended + tempoBonus
	}
	return blended - tempoBonus
}

// cachedPawnDefects returns the pawn structure score through the pawn
// hash table when one is supplied.
func cachedPawnDefects(pos *board.Position, pt *PawnTable) tapered {
	if pt == nil {
		return pawnDefects(pos)
	}
	if mg, eg, found := pt.Probe(pos.PawnKey); found {
		return tapered{mg, eg}
	}
	t := pawnDefects(pos)
	pt.Store(pos.PawnKey, t.mg, t.eg)
	return t
}

// pawnDefects is the White-relative pawn structure score, the part of
// the evaluation determined by the pawn skeleton alone.
func pawnDefects(pos *board.Position) tapered {
	t := pawnDefectScore(pos, board.White)
	t.sub(pawnDefectScore(pos, board.Black))
	return t
}

// pawnDefectScore penalizes doubled, isolated, and backward pawns for
// one color. The penalty constants are negative.
func pawnDefectScore(pos *board.Position, color board.Color) tapered {
	var t tapered
	pawns := pos.Pieces[color][board.Pawn]

	for f := 0; f < 8; f++ {
		onFile := (pawns & board.FileMask[f]).PopCount()
		if onFile > 1 {
			t.mg += doubledPawnMg * (onFile - 1)
			t.eg += doubledPawnEg * (onFile - 1)
		}
	}

	for bb := pawns; bb != 0; {
		sq := bb.PopLSB()
		file := sq.File()

		neighbors := pawns & adjacentFiles[file]
		if neighbors == 0 {
			t.mg += isolatedPawnMg
			t.eg += isolatedPawnEg
			continue
		}

		// Backward: every adjacent-file friend is ahead of this pawn,
		// and its stop square is covered by an enemy pawn.
		if neighbors&^forwardRanks(sq, color) != 0 {
			continue
		}
		stop := advanceSquare(sq, color)
		if !stop.IsValid() {
			continue
		}
		if pos.Pieces[color.Other()][board.Pawn]&board.PawnAttacks(stop, color) != 0 {
			t.mg += backwardPawnMg
			t.eg += backwardPawnEg
		}
	}
	return t
}

// isPassed reports whether the pawn on sq has no enemy pawn ahead of
// it on its own or an adjacent file.
func isPassed(pos *board.Position, sq board.Square, color board.Color) bool {
	front := forwardRanks(sq, color) & (board.FileMask[sq.File()] | adjacentFiles[sq.File()])
	return pos.Pieces[color.Other()][board.Pawn]&front == 0
}

// passedPawnScore rewards passed pawns by how far they have advanced,
// whether a friend defends or accompanies them, and whether the road
// to promotion is clear. The endgame weight is half again the
// middlegame weight.
func passedPawnScore(pos *board.Position, color board.Color) tapered {
	var t tapered
	ownPawns := pos.Pieces[color][board.Pawn]

	for bb := ownPawns; bb != 0; {
		sq := bb.PopLSB()
		if !isPassed(pos, sq, color) {
			continue
		}

		bonus := passedPawnRankBonus[sq.RelativeRank(color)]
		if board.PawnAttacks(sq, color.Other())&ownPawns != 0 {
			bonus += passedPawnProtected
		}
		for nb := ownPawns & adjacentFiles[sq.File()]; nb != 0; {
			if isPassed(pos, nb.PopLSB(), color) {
				bonus += passedPawnConnected
				break
			}
		}
		if forwardRanks(sq, color)&board.FileMask[sq.File()]&pos.AllOccupied == 0 {
			bonus += passedPawnClearPath
		}

		t.mg += bonus
		t.eg += bonus * 3 / 2
	}
	return t
}

// mobilityScore counts the squares each piece can reach that are
// neither occupied by its own side nor covered by an enemy pawn.
func mobilityScore(pos *board.Position, color board.Color) tapered {
	var t tapered
	unsafe := pawnAttackSpan(pos.Pieces[color.Other()][board.Pawn], color.Other()) |
		pos.Occupied[color]

	for pt := board.Knight; pt <= board.Queen; pt++ {
		for bb := pos.Pieces[color][pt]; bb != 0; {
			sq := bb.PopLSB()
			reach := (pieceAttacks(pt, sq, pos.AllOccupied) &^ unsafe).PopCount()
			t.mg += mobilityMgWeight[pt] * reach
			t.eg += mobilityEgWeight[pt] * reach
		}
	}
	return t
}

// kingShelterScore is the middlegame-only king safety term: a penalty
// scaled by the pieces bearing on the king's zone, plus the state of
// the pawn shield and the files around the king.
func kingShelterScore(pos *board.Position, color board.Color) tapered {
	kingSq := pos.KingSquare[color]
	zone := board.KingAttacks(kingSq) | board.SquareBB(kingSq)
	if color == board.White {
		zone |= zone.North()
	} else {
		zone |= zone.South()
	}

	enemy := color.Other()
	attackers, weight := 0, 0
	for pt := board.Knight; pt <= board.Queen; pt++ {
		for bb := pos.Pieces[enemy][pt]; bb != 0; {
			sq := bb.PopLSB()
			if pieceAttacks(pt, sq, pos.AllOccupied)&zone != 0 {
				attackers++
				weight += kingAttackWeight[pt]
			}
		}
	}
	// Several attackers compound each other.
	if attackers >= 2 {
		weight = weight * attackers / 2
	}
	score := -weight

	shieldRank := 1
	if color == board.Black {
		shieldRank = 6
	}
	ownPawns := pos.Pieces[color][board.Pawn]
	enemyPawns := pos.Pieces[enemy][board.Pawn]
	for f := kingSq.File() - 1; f <= kingSq.File()+1; f++ {
		if f < 0 || f > 7 {
			continue
		}
		fileMask := board.FileMask[f]
		switch {
		case ownPawns&fileMask&board.RankMask[shieldRank] != 0:
			score += pawnShieldBonus
		case ownPawns&fileMask == 0:
			score += pawnShieldMissing
		}
		if ownPawns&fileMask == 0 {
			if enemyPawns&fileMask == 0 {
				score += openFileNearKing
			} else {
				score += semiOpenFileNearKing
			}
		}
	}

	return tapered{mg: score}
}

func bishopPairScore(pos *board.Position, color board.Color) tapered {
	if pos.Pieces[color][board.Bishop].PopCount() < 2 {
		return tapered{}
	}
	return tapered{bishopPairMg, bishopPairEg}
}

// rookFileScore rewards rooks on files with no friendly pawn, more so
// when the enemy has none there either.
func rookFileScore(pos *board.Position, color board.Color) tapered {
	var t tapered
	ownPawns := pos.Pieces[color][board.Pawn]
	enemyPawns := pos.Pieces[color.Other()][board.Pawn]

	for bb := pos.Pieces[color][board.Rook]; bb != 0; {
		fileMask := board.FileMask[bb.PopLSB().File()]
		if ownPawns&fileMask != 0 {
			continue
		}
		if enemyPawns&fileMask == 0 {
			t.mg += rookOpenFileMg
			t.eg += rookOpenFileEg
		} else {
			t.mg += rookSemiOpenFileMg
			t.eg += rookSemiOpenFileEg
		}
	}
	return t
}

// pieceAttacks dispatches to the attack generator for a piece type.
func pieceAttacks(pt board.PieceType, sq board.Square, occupied board.Bitboard) board.Bitboard {
	switch pt {
	case board.Knight:
		return board.KnightAttacks(sq)
	case board.Bishop:
		return board.BishopAttacks(sq, occupied)
	case board.Rook:
		return board.RookAttacks(sq, occupied)
	case board.Queen:
		return board.QueenAttacks(sq, occupied)
	}
	return 0
}

// pawnAttackSpan is the set of squares attacked by any pawn of the
// given color.
func pawnAttackSpan(pawns board.Bitboard, color board.Color) board.Bitboard {
	if color == board.White {
		return pawns.NorthEast() | pawns.NorthWest()
	}
	return pawns.SouthEast() | pawns.SouthWest()
}

// forwardRanks masks every square on the ranks strictly ahead of sq
// from color's point of view.
func forwardRanks(sq board.Square, color board.Color) board.Bitboard {
	var m board.Bitboard
	if color == board.White {
		for r := sq.Rank() + 1; r < 8; r++ {
			m |= board.RankMask[r]
		}
	} else {
		for r := 0; r < sq.Rank(); r++ {
			m |= board.RankMask[r]
		}
	}
	return m
}

// advanceSquare is the square directly in front of sq for color. The
// result is invalid for a pawn standing on its promotion rank.
func advanceSquare(sq board.Square, color board.Color) board.Square {
	if color == board.White {
		return sq + 8
	}
	return sq - 8
}
