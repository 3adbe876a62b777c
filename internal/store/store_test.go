package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hailam/chessmind/internal/board"
	"github.com/hailam/chessmind/internal/engine"
	"github.com/hailam/chessmind/internal/store"
)

func TestSaveAndLoadTT(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chessmind-store-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbDir := filepath.Join(tmpDir, "tt")
	s, err := store.OpenAt(dbDir)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer s.Close()

	tt := engine.NewTranspositionTable(1)
	tt.Store(0x1122334455667788, 7, 321, engine.TTExact, board.NewMove(board.E2, board.E4))

	if err := s.SaveTT(tt); err != nil {
		t.Fatalf("SaveTT failed: %v", err)
	}

	restored := engine.NewTranspositionTable(1)
	if err := s.LoadTT(restored); err != nil {
		t.Fatalf("LoadTT failed: %v", err)
	}

	entry, found := restored.Probe(0x1122334455667788)
	if !found {
		t.Fatal("entry not found after save/load round trip")
	}
	if entry.Score != 321 || entry.Depth != 7 || entry.Flag != engine.TTExact {
		t.Errorf("entry mismatch after round trip: %+v", entry)
	}
}

func TestLoadTTMissingSnapshotIsNoop(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chessmind-store-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := store.OpenAt(filepath.Join(tmpDir, "tt"))
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer s.Close()

	tt := engine.NewTranspositionTable(1)
	if err := s.LoadTT(tt); err != nil {
		t.Errorf("LoadTT on empty store should be a no-op, got: %v", err)
	}
}

func TestGetTTDirCreatesDirectory(t *testing.T) {
	dir, err := store.GetTTDir()
	if err != nil {
		t.Fatalf("GetTTDir failed: %v", err)
	}
	if dir == "" {
		t.Error("GetTTDir returned empty path")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("TT directory was not created: %s", dir)
	}
}
