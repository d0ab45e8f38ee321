package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// FileName is the ledger document inside the case directory.
	FileName = "ledger.json"

	schemaVersion = 1
)

// CorruptError reports an absent or unparsable ledger. The controller cannot
// safely proceed; the operator has to inspect the case directory.
type CorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ledger %s is unusable: %s", e.Path, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// InvalidTransitionError reports a chunk status transition the state machine
// forbids. It indicates a bug or manual ledger tampering, never a normal
// runtime condition.
type InvalidTransitionError struct {
	Chunk int
	From  ChunkStatus
	To    ChunkStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid chunk %d status transition %s -> %s", e.Chunk, e.From, e.To)
}

// Store reads and writes the ledger of one case directory.
type Store struct {
	caseDir string
}

func NewStore(caseDir string) *Store {
	return &Store{caseDir: caseDir}
}

func (s *Store) Path() string {
	return filepath.Join(s.caseDir, FileName)
}

// Init writes the initial ledger for a freshly created case. With the
// transfer-all policy every chunk starts input_ready, otherwise pending.
func (s *Store) Init(attrs CaseAttrs, chunks []ChunkRecord) (*Ledger, error) {
	initial := ChunkPending
	if attrs.Transfer == TransferAll {
		initial = ChunkInputReady
	}
	for i := range chunks {
		if chunks[i].Status == "" {
			chunks[i].Status = initial
		}
	}
	l := &Ledger{
		SchemaVersion: schemaVersion,
		Case:          attrs,
		Status:        CasePlanned,
		CurrentChunk:  0,
		Chunks:        chunks,
	}
	if err := s.Save(l); err != nil {
		return nil, err
	}
	return l, nil
}

// Load reads and parses the persisted ledger.
func (s *Store) Load() (*Ledger, error) {
	path := s.Path()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &CorruptError{Path: path, Reason: "cannot read ledger file", Err: err}
	}
	var l Ledger
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, &CorruptError{Path: path, Reason: "cannot parse ledger file", Err: err}
	}
	if l.SchemaVersion == 0 || len(l.Chunks) == 0 {
		return nil, &CorruptError{Path: path, Reason: "ledger misses schema version or chunks"}
	}
	return &l, nil
}

// Save atomically replaces the on-disk ledger. A crash mid-write leaves
// either the old or the new document intact, never a torn one.
func (s *Store) Save(l *Ledger) error {
	l.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.caseDir, FileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("rename ledger file: %w", err)
	}
	return nil
}

// validNext is the chunk status state machine. A chunk may additionally jump
// ran -> archived directly when archiving is disabled (vacuous archive).
var validNext = map[ChunkStatus][]ChunkStatus{
	ChunkPending:    {ChunkInputReady, ChunkFailed},
	ChunkInputReady: {ChunkRunning, ChunkFailed},
	ChunkRunning:    {ChunkRan, ChunkFailed},
	ChunkRan:        {ChunkArchiving, ChunkArchived, ChunkFailed},
	ChunkArchiving:  {ChunkArchived, ChunkFailed},
	ChunkArchived:   {},
	ChunkFailed:     {},
}

// CanTransition reports whether from -> to is a legal chunk transition.
func CanTransition(from, to ChunkStatus) bool {
	for _, n := range validNext[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Mutation adjusts the freshly re-read ledger alongside a transition, e.g. to
// record a scheduler job id.
type Mutation func(*Ledger)

// Transition re-reads the ledger from disk, validates the requested chunk
// status change, applies it together with any extra mutations, and saves the
// whole document. The in-memory copy callers may hold from an earlier
// invocation is deliberately not trusted.
func (s *Store) Transition(chunkIndex int, to ChunkStatus, muts ...Mutation) (*Ledger, error) {
	l, err := s.Load()
	if err != nil {
		return nil, err
	}
	c := l.Chunk(chunkIndex)
	if c == nil {
		return nil, fmt.Errorf("chunk index %d out of range (case has %d chunks)", chunkIndex, len(l.Chunks))
	}
	if !CanTransition(c.Status, to) {
		return nil, &InvalidTransitionError{Chunk: chunkIndex, From: c.Status, To: to}
	}
	c.Status = to
	now := time.Now().UTC()
	switch to {
	case ChunkRunning:
		c.SubmittedAt = &now
	case ChunkRan, ChunkArchived, ChunkFailed:
		c.EndedAt = &now
	}
	for _, m := range muts {
		m(l)
	}
	if err := s.Save(l); err != nil {
		return nil, err
	}
	return l, nil
}

// Update re-reads the ledger, applies mutations that do not change any chunk
// status (job ids, current chunk pointer, case status), and saves.
func (s *Store) Update(muts ...Mutation) (*Ledger, error) {
	l, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, m := range muts {
		m(l)
	}
	if err := s.Save(l); err != nil {
		return nil, err
	}
	return l, nil
}

// SetCaseStatus re-reads, updates the overall case status and saves.
func (s *Store) SetCaseStatus(status CaseStatus, muts ...Mutation) (*Ledger, error) {
	l, err := s.Load()
	if err != nil {
		return nil, err
	}
	l.Status = status
	for _, m := range muts {
		m(l)
	}
	if err := s.Save(l); err != nil {
		return nil, err
	}
	return l, nil
}
