// Package tree stores the per-chat hierarchy of directories and files.
//
// Root (id 0) is implicit: it is never stored, belongs to every scope and
// cannot be removed. Parents are fixed at creation, so the tree cannot
// contain cycles. The store enforces structure only; callers check
// ownership before mutating.
package tree

import (
	"context"
	"errors"
	"strings"
	"time"
)

const RootID int64 = 0

var (
	ErrNotFound     = errors.New("tree: node not found")
	ErrValidation   = errors.New("tree: invalid node")
	ErrPrecondition = errors.New("tree: precondition failed")
)

// Node is a directory (MimeType == nil) or a file.
type Node struct {
	ID          int64
	ParentID    int64
	Name        string
	MimeType    *string
	SizeBytes   *int64
	OwnerUserID int64
	ScopeID     int64
	CreatedAt   time.Time
	ExternalRef string
}

func (n Node) IsDir() bool { return n.MimeType == nil }

func (n Node) IsRoot() bool { return n.ID == RootID }

// Root is the synthetic root node.
func Root() Node {
	return Node{ID: RootID, Name: "/"}
}

// NewDir describes a directory to be created.
func NewDir(scopeID, ownerID, parentID int64, name string) Node {
	return Node{ScopeID: scopeID, OwnerUserID: ownerID, ParentID: parentID, Name: name}
}

// NewFile describes a file to be created. An empty mime type is stored as
// application/octet-stream.
func NewFile(scopeID, ownerID, parentID int64, name, mimeType string, size int64, ref string) Node {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return Node{
		ScopeID:     scopeID,
		OwnerUserID: ownerID,
		ParentID:    parentID,
		Name:        name,
		MimeType:    &mimeType,
		SizeBytes:   &size,
		ExternalRef: ref,
	}
}

// Page is one slice of a directory listing.
type Page struct {
	Items      []Node
	Total      int
	TotalPages int
}

// Store is implemented by MemoryStore and SQLiteStore.
type Store interface {
	// Get returns ErrNotFound for unknown ids. Get(RootID) returns Root().
	Get(ctx context.Context, id int64) (Node, error)
	// ListChildren returns the children of dirID in scopeID ordered by
	// creation time then id. A page past the end is empty, not an error.
	ListChildren(ctx context.Context, scopeID, dirID int64, page, pageSize int) (Page, error)
	// Create assigns the id and creation time.
	Create(ctx context.Context, n Node) (Node, error)
	// Remove deletes a leaf or an empty directory.
	Remove(ctx context.Context, scopeID, id int64) error
	Close() error
}

// validate checks the node fields that do not depend on stored state.
func validate(n *Node) error {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return errWrap(ErrValidation, "empty name")
	}
	if n.IsDir() {
		if n.SizeBytes != nil || n.ExternalRef != "" {
			return errWrap(ErrValidation, "directory cannot carry size or external ref")
		}
	} else if n.ExternalRef == "" {
		return errWrap(ErrValidation, "file needs an external ref")
	}
	if n.ParentID < 0 {
		return errWrap(ErrValidation, "negative parent id")
	}
	return nil
}

// checkParent verifies that parent can hold a child in scopeID.
func checkParent(parent Node, scopeID int64) error {
	if parent.IsRoot() {
		return nil
	}
	if parent.ScopeID != scopeID {
		return errWrap(ErrValidation, "parent belongs to another scope")
	}
	if !parent.IsDir() {
		return errWrap(ErrValidation, "parent is not a directory")
	}
	return nil
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

type wrapped struct {
	kind error
	msg  string
}

func (e *wrapped) Error() string { return e.kind.Error() + ": " + e.msg }
func (e *wrapped) Unwrap() error { return e.kind }

func errWrap(kind error, msg string) error {
	return &wrapped{kind: kind, msg: msg}
}
