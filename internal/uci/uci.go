package uci

import (
	"bufio"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/hailam/chessmind/internal/board"
	"github.com/hailam/chessmind/internal/engine"
	"github.com/hailam/chessmind/internal/store"
)

// UCI implements the Universal Chess Interface protocol around a
// single-threaded Engine.
type UCI struct {
	engine   *engine.Engine
	position *board.Position

	// positionHashes is the game's Zobrist hash history (including the
	// current position), seeded here and fed to SelectMove for
	// repetition detection.
	positionHashes []uint64

	timeManager *engine.TimeManager

	// snapshots, if non-nil, is saved to on "quit" so a correspondence
	// -play supervisor that restarts the process between moves keeps
	// the transposition table warm.
	snapshots *store.Store

	searching  bool
	searchDone chan struct{}
	stopCh     chan struct{}

	// lastPV is the deepest principal variation reported by the last
	// search, kept for the "d" command's SAN rendering.
	lastPV []board.Move

	profileFile *os.File
}

// New creates a new UCI protocol handler around eng.
func New(eng *engine.Engine) *UCI {
	return &UCI{
		engine:      eng,
		position:    board.NewPosition(),
		timeManager: engine.NewTimeManager(),
	}
}

// WithSnapshots enables saving the transposition table to s on "quit".
func (u *UCI) WithSnapshots(s *store.Store) *UCI {
	u.snapshots = s
	return u
}

// Run starts the UCI main loop, reading commands from stdin.
func (u *UCI) Run() {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			fmt.Println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "quit":
			u.handleQuit()
		case "setoption":
			u.handleSetOption(args)
		case "d":
			u.handleDisplay()
		case "perft":
			u.handlePerft(args)
		}
	}
}

// handleDisplay prints the board, static eval, legal moves, and the
// last search's principal variation, all in human-readable SAN.
func (u *UCI) handleDisplay() {
	fmt.Println(u.position.String())
	fmt.Printf("info string eval %d\n", u.engine.Evaluate(u.position))

	legal := u.position.GenerateLegalMoves()
	sans := make([]string, legal.Len())
	for i := 0; i < legal.Len(); i++ {
		sans[i] = legal.Get(i).ToSAN(u.position)
	}
	fmt.Printf("info string legal %s\n", strings.Join(sans, " "))

	if len(u.lastPV) > 0 {
		fmt.Printf("info string pv %s\n", strings.Join(board.MovesToSAN(u.position, u.lastPV), " "))
	}
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	fmt.Println("id name ChessMind")
	fmt.Println("id author ChessMind Team")
	fmt.Println()
	fmt.Println("option name Hash type spin default 64 min 1 max 4096")
	fmt.Println("option name Debug type check default false")
	fmt.Println("uciok")
}

// handleNewGame resets tables for a new game. Per the engine's
// lifecycle contract this is invoked once at game start, never
// between moves of the same game.
func (u *UCI) handleNewGame() {
	u.engine.ClearTT()
	u.position = board.NewPosition()
	u.positionHashes = []uint64{u.position.Hash}
	u.lastPV = nil
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	u.positionHashes = nil
	u.lastPV = nil
	var moveStart int

	if args[0] == "startpos" {
		u.position = board.NewPosition()
		moveStart = 1
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	} else if args[0] == "fen" {
		fenEnd := len(args)
		for i, arg := range args[1:] {
			if arg == "moves" {
				fenEnd = i + 1
				break
			}
		}

		fenStr := strings.Join(args[1:fenEnd], " ")
		pos, err := board.ParseFEN(fenStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string Invalid FEN: %v\n", err)
			return
		}
		u.position = pos

		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	} else {
		return
	}

	u.positionHashes = append(u.positionHashes, u.position.Hash)

	if moveStart < len(args) {
		for _, moveStr := range args[moveStart:] {
			move := u.parseMove(moveStr)
			if move == board.NoMove {
				fmt.Fprintf(os.Stderr, "info string Invalid move: %s\n", moveStr)
				return
			}
			u.position.MakeMove(move)
			u.position.UpdateCheckers()
			u.positionHashes = append(u.positionHashes, u.position.Hash)
		}
	}
}

// parseMove converts a UCI move string to a board.Move.
func (u *UCI) parseMove(moveStr string) board.Move {
	if len(moveStr) < 4 {
		return board.NoMove
	}

	fromFile := int(moveStr[0] - 'a')
	fromRank := int(moveStr[1] - '1')
	toFile := int(moveStr[2] - 'a')
	toRank := int(moveStr[3] - '1')

	if fromFile < 0 || fromFile > 7 || fromRank < 0 || fromRank > 7 ||
		toFile < 0 || toFile > 7 || toRank < 0 || toRank > 7 {
		return board.NoMove
	}

	from := board.NewSquare(fromFile, fromRank)
	to := board.NewSquare(toFile, toRank)

	var promo board.PieceType
	if len(moveStr) == 5 {
		switch moveStr[4] {
		case 'q':
			promo = board.Queen
		case 'r':
			promo = board.Rook
		case 'b':
			promo = board.Bishop
		case 'n':
			promo = board.Knight
		}
	}

	moves := u.position.GenerateLegalMoves()
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		if m.From() == from && m.To() == to {
			if promo != 0 {
				if m.IsPromotion() && m.Promotion() == promo {
					return m
				}
			} else if !m.IsPromotion() {
				return m
			}
		}
	}

	return board.NoMove
}

// GoOptions holds parsed "go" command options.
type GoOptions struct {
	Depth     int
	Nodes     uint64
	MoveTime  time.Duration
	Infinite  bool
	WTime     time.Duration
	BTime     time.Duration
	WInc      time.Duration
	BInc      time.Duration
	MovesToGo int
}

// handleGo starts a search with the given parameters. "go depth N" and
// "go movetime MS" both reduce to the same controller call, differing
// only in whether targetDepth or the time limits (timeLimit and
// endgameTimeLimit, both MS) are set; "go wtime/btime/..." is converted
// through the time manager into an optimum budget (timeLimit) and a
// maximum budget (endgameTimeLimit).
func (u *UCI) handleGo(args []string) {
	opts := u.parseGoOptions(args)

	u.engine.OnInfo = func(info engine.SearchInfo) {
		u.sendInfo(info)
	}

	targetDepth := opts.Depth
	var timeLimit, endgameLimit time.Duration

	switch {
	case opts.Infinite:
		endgameLimit = time.Hour
	case opts.MoveTime > 0:
		timeLimit = opts.MoveTime
		endgameLimit = opts.MoveTime
	case opts.WTime > 0 || opts.BTime > 0:
		limits := engine.UCILimits{
			Time:      [2]time.Duration{opts.WTime, opts.BTime},
			Inc:       [2]time.Duration{opts.WInc, opts.BInc},
			MovesToGo: opts.MovesToGo,
		}
		ply := len(u.positionHashes) - 1
		u.timeManager.Init(limits, u.position.SideToMove, ply)
		timeLimit = u.timeManager.OptimumTime()
		endgameLimit = u.timeManager.MaximumTime()
	}

	u.searching = true
	u.searchDone = make(chan struct{})
	u.stopCh = make(chan struct{})

	pos := u.position.Copy()
	history := append([]uint64(nil), u.positionHashes...)

	go func() {
		defer close(u.searchDone)

		bestMove, _ := u.engine.SelectMoveStoppable(pos, timeLimit, targetDepth, endgameLimit, history, u.stopCh)
		u.searching = false

		validationPos := u.position.Copy()
		if bestMove != board.NoMove {
			legal := validationPos.GenerateLegalMoves()
			for i := 0; i < legal.Len(); i++ {
				if legal.Get(i) == bestMove {
					fmt.Printf("bestmove %s\n", bestMove.String())
					return
				}
			}
			fmt.Fprintf(os.Stderr, "info string CRITICAL: search returned illegal move %s\n", bestMove.String())
		}

		legal := validationPos.GenerateLegalMoves()
		if legal.Len() > 0 {
			fmt.Printf("bestmove %s\n", legal.Get(0).String())
		} else {
			fmt.Println("bestmove 0000")
		}
	}()
}

// parseGoOptions parses "go" command arguments.
func (u *UCI) parseGoOptions(args []string) GoOptions {
	opts := GoOptions{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			if i+1 < len(args) {
				opts.Depth, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "nodes":
			if i+1 < len(args) {
				n, _ := strconv.ParseUint(args[i+1], 10, 64)
				opts.Nodes = n
				i++
			}
		case "movetime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.MoveTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "infinite":
			opts.Infinite = true
		case "wtime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "btime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "winc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "binc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "movestogo":
			if i+1 < len(args) {
				opts.MovesToGo, _ = strconv.Atoi(args[i+1])
				i++
			}
		}
	}

	return opts
}

// sendInfo outputs search info in UCI format.
func (u *UCI) sendInfo(info engine.SearchInfo) {
	var parts []string

	parts = append(parts, fmt.Sprintf("depth %d", info.Depth))

	if info.Score >= engine.MateThreshold {
		mateIn := (engine.MateScore - info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else if info.Score <= -engine.MateThreshold {
		mateIn := -(engine.MateScore + info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else {
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))

	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}

	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}
	if info.TTHitRate > 0 {
		parts = append(parts, fmt.Sprintf("ttlifetimerate %d", int(info.TTHitRate)))
	}

	st := info.Stats
	ttProbes := st.TTHits + st.TTMisses
	if ttProbes > 0 {
		ttRate := st.TTHits * 100 / ttProbes
		parts = append(parts, fmt.Sprintf("tthits %d", st.TTHits))
		parts = append(parts, fmt.Sprintf("ttmisses %d", st.TTMisses))
		parts = append(parts, fmt.Sprintf("ttrate %d", ttRate))
		parts = append(parts, fmt.Sprintf("ttcutoffs %d", st.TTCutoffs))
	}
	parts = append(parts, fmt.Sprintf("abcutoffs %d", st.ABCutoffs))
	if info.BestMoveHistory > 0 {
		parts = append(parts, fmt.Sprintf("historyscore %d", info.BestMoveHistory))
	}
	if info.Nodes > 0 {
		qsPct := st.QuiescenceNodes * 100 / info.Nodes
		parts = append(parts, fmt.Sprintf("qsnodes %d", st.QuiescenceNodes))
		parts = append(parts, fmt.Sprintf("qspct %d", qsPct))
	}

	if len(info.PV) > 0 {
		u.lastPV = append(u.lastPV[:0], info.PV...)
		validPV := make([]string, 0, len(info.PV))
		testPos := u.position.Copy()
		for _, move := range info.PV {
			legal := testPos.GenerateLegalMoves()
			isLegal := false
			for i := 0; i < legal.Len(); i++ {
				if legal.Get(i) == move {
					isLegal = true
					break
				}
			}
			if !isLegal {
				break
			}
			validPV = append(validPV, move.String())
			testPos.MakeMove(move)
		}
		if len(validPV) > 0 {
			parts = append(parts, "pv "+strings.Join(validPV, " "))
		}
	}

	fmt.Printf("info %s\n", strings.Join(parts, " "))
}

// handleStop stops the current search and waits for it to finish.
func (u *UCI) handleStop() {
	if u.searching {
		close(u.stopCh)
		<-u.searchDone
	}
}

// handleQuit exits the program.
func (u *UCI) handleQuit() {
	u.handleStop()
	if u.snapshots != nil {
		if err := u.engine.SaveSnapshot(u.snapshots); err != nil {
			fmt.Fprintf(os.Stderr, "info string failed to save TT snapshot: %v\n", err)
		}
		u.snapshots.Close()
	}
	if u.profileFile != nil {
		pprof.StopCPUProfile()
		u.profileFile.Close()
		fmt.Fprintf(os.Stderr, "info string CPU profile saved\n")
	}
	os.Exit(0)
}

// handleSetOption processes "setoption" commands.
func (u *UCI) handleSetOption(args []string) {
	var name, value string
	readingName := false
	readingValue := false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName = true
			readingValue = false
		case "value":
			readingName = false
			readingValue = true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	switch strings.ToLower(name) {
	case "hash":
		// Resizing requires re-allocating the table; not supported
		// mid-game since the engine owns it for the game's lifetime.
	case "debug":
		// Accepted for protocol compliance; this engine has no
		// separate debug-logging mode to toggle.
	case "cpuprofile":
		if u.profileFile != nil {
			pprof.StopCPUProfile()
			u.profileFile.Close()
			u.profileFile = nil
		}
		if value != "" && value != "stop" {
			f, err := os.Create(value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "info string Failed to create profile: %v\n", err)
				return
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				fmt.Fprintf(os.Stderr, "info string Failed to start profile: %v\n", err)
				return
			}
			u.profileFile = f
		}
	}
}

// handlePerft runs a perft self-test of the move generator.
func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		depth, _ = strconv.Atoi(args[0])
	}

	start := time.Now()
	nodes := u.engine.Perft(u.position, depth)
	elapsed := time.Since(start)

	fmt.Printf("Nodes: %d\n", nodes)
	fmt.Printf("Time: %v\n", elapsed)
	if elapsed > 0 {
		nps := float64(nodes) / elapsed.Seconds()
		fmt.Printf("NPS: %.0f\n", nps)
	}
}
