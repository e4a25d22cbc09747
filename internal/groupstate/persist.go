package groupstate

import (
	"os"

	"github.com/nightlyone/lockfile"

	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/ratchettree"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// FileGuard enforces the single-writer rule across process restarts:
// only one process may hold a GroupState backed by a given path open
// for writing at a time, using a sibling ".lock" path.
type FileGuard struct {
	path string
	lock lockfile.Lockfile
}

// NewFileGuard prepares (without acquiring) the lock for path+".lock".
func NewFileGuard(path string) (*FileGuard, error) {
	lock, err := lockfile.New(path + ".lock")
	if err != nil {
		return nil, protocolf("create lockfile for %s: %v", path, err)
	}
	return &FileGuard{path: path, lock: lock}, nil
}

// TryLock acquires the guard, failing immediately rather than
// blocking if it is already held, by another process or by an
// earlier guard in this one.
func (g *FileGuard) TryLock() error {
	if owner, err := g.lock.GetOwner(); err == nil && owner.Pid == os.Getpid() {
		return protocolf("%s is already locked by this process", g.path)
	}
	if err := g.lock.TryLock(); err != nil {
		return protocolf("%s is locked by another process: %v", g.path, err)
	}
	return nil
}

// Unlock releases the guard.
func (g *FileGuard) Unlock() error {
	return g.lock.Unlock()
}

// snapshot is the on-disk encoding of a GroupState. SuiteID stands in
// for the Suite itself, re-resolved via ciphersuite.ByID on Load.
type snapshot struct {
	SuiteID            uint16
	Epoch              uint32
	NumLeaves          uint32
	TreePublicKeys     []wire.Opaque2 `tls:"head=4"`
	TreeCredentials    []wire.Opaque2 `tls:"head=4"`
	TranscriptHash     []byte         `tls:"head=1"`
	InitSecret         []byte         `tls:"head=1"`
	ConfirmationKey    []byte         `tls:"head=1"`
	ApplicationSecret  []byte         `tls:"head=1"`
	IdentityKey        []byte         `tls:"head=2"`
	MyPositionInRoster uint32
}

// Save guards path with a FileGuard and writes gs's snapshot,
// refusing to write if another process already holds the guard.
func Save(path string, gs *GroupState) error {
	guard, err := NewFileGuard(path)
	if err != nil {
		return err
	}
	if err := guard.TryLock(); err != nil {
		return err
	}
	defer guard.Unlock()

	pubKeys := gs.Tree.ExportPublicKeys()
	credBytes, err := gs.Tree.ExportCredentials()
	if err != nil {
		return err
	}

	snap := snapshot{
		SuiteID:            gs.Suite.ID(),
		Epoch:              gs.Epoch,
		NumLeaves:          gs.Tree.NumLeaves(),
		TreePublicKeys:     wire.Opaque2Slice(pubKeys),
		TreeCredentials:    wire.Opaque2Slice(credBytes),
		TranscriptHash:     gs.TranscriptHash,
		InitSecret:         gs.InitSecret,
		ConfirmationKey:    gs.ConfirmationKey,
		ApplicationSecret:  gs.ApplicationSecret,
		IdentityKey:        gs.IdentityKey,
		MyPositionInRoster: gs.MyPositionInRoster,
	}
	data, err := wire.Marshal(&snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load acquires path's FileGuard and reconstructs the GroupState
// written by Save. The returned guard must be released by the caller
// (typically deferred alongside the process's own lifetime) to permit
// a later Save to the same path.
func Load(path string) (*GroupState, *FileGuard, error) {
	guard, err := NewFileGuard(path)
	if err != nil {
		return nil, nil, err
	}
	if err := guard.TryLock(); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		guard.Unlock()
		return nil, nil, protocolf("read group state %s: %v", path, err)
	}
	var snap snapshot
	if err := wire.Unmarshal(data, &snap); err != nil {
		guard.Unlock()
		return nil, nil, err
	}

	suite, ok := ciphersuite.ByID(snap.SuiteID)
	if !ok {
		guard.Unlock()
		return nil, nil, protocolf("group state names unregistered cipher suite %d", snap.SuiteID)
	}
	tree, err := ratchettree.FromExport(suite, snap.NumLeaves, wire.ByteSlices(snap.TreePublicKeys), wire.ByteSlices(snap.TreeCredentials))
	if err != nil {
		guard.Unlock()
		return nil, nil, err
	}

	gs := &GroupState{
		Suite:              suite,
		Epoch:              snap.Epoch,
		Tree:               tree,
		TranscriptHash:     snap.TranscriptHash,
		InitSecret:         snap.InitSecret,
		ConfirmationKey:    snap.ConfirmationKey,
		ApplicationSecret:  snap.ApplicationSecret,
		IdentityKey:        snap.IdentityKey,
		MyPositionInRoster: snap.MyPositionInRoster,
		ratchets:           map[uint32]*ApplicationRatchet{},
	}
	return gs, guard, nil
}
