// Package files implements the per-chat file browser: a tree of folders
// and uploaded documents navigated with inline buttons.
package files

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/callback"
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/logger"
	"github.com/sipeed/picobot/pkg/tree"
)

var codes = []callback.Code{
	callback.CodeSelect,
	callback.CodeDelete,
	callback.CodeAddFile,
	callback.CodeAddDir,
	callback.CodeOpen,
}

// textCodec decodes the action token a continuation stores at the start
// of the user's next line.
var textCodec = mustCodec(callback.NamespaceFiles, codes...)

func mustCodec(namespace string, codes ...callback.Code) *callback.Codec {
	c := callback.NewCodec()
	if err := c.Register(namespace, codes...); err != nil {
		panic(fmt.Sprintf("files: %v", err))
	}
	return c
}

// Prompts are the texts sent while waiting for the user's follow-up.
type Prompts struct {
	SendFile   string `json:"send_file"`
	FolderName string `json:"folder_name"`
}

func DefaultPrompts() Prompts {
	return Prompts{
		SendFile:   "Now send me a message with the file.",
		FolderName: "Now write the folder name.",
	}
}

type Handler struct {
	store   tree.Store
	render  Renderer
	prompts Prompts
}

func NewHandler(store tree.Store, render Renderer, prompts Prompts) *Handler {
	def := DefaultPrompts()
	if prompts.SendFile == "" {
		prompts.SendFile = def.SendFile
	}
	if prompts.FolderName == "" {
		prompts.FolderName = def.FolderName
	}
	return &Handler{store: store, render: render, prompts: prompts}
}

func (*Handler) Name() string        { return "files" }
func (*Handler) Description() string { return "Browse and share files in this chat" }
func (*Handler) Usage() string       { return "/files" }

func (*Handler) Namespace() (string, []callback.Code) {
	return callback.NamespaceFiles, codes
}

func (h *Handler) Handle(ctx context.Context, req commands.Request) (bus.Reply, error) {
	if req.Action != nil {
		cb := req.Callback()
		if cb == nil {
			return nil, commands.Internal("files", fmt.Errorf("action without callback event"))
		}
		return h.handleCallback(ctx, req, cb, *req.Action)
	}
	msg := req.Text()
	if msg == nil {
		return nil, commands.Internal("files", fmt.Errorf("unexpected event %T", req.Event))
	}
	return h.handleText(ctx, req, msg)
}

func (h *Handler) handleCallback(ctx context.Context, req commands.Request, cb *bus.CallbackEvent, a callback.Action) (bus.Reply, error) {
	scope := cb.ChatID

	switch a.Code {
	case callback.CodeListRoot:
		return h.editListing(ctx, cb, tree.RootID, 0)

	case callback.CodeSelect:
		n, err := h.lookup(ctx, scope, a.TargetID, "select")
		if err != nil {
			return nil, err
		}
		if n.IsDir() {
			return h.editListing(ctx, cb, n.ID, a.PageIndex())
		}
		view, err := h.render.RenderFile(ctx, n)
		if err != nil {
			return nil, commands.Internal("render file", err)
		}
		return editView(cb, view), nil

	case callback.CodeDelete:
		return h.delete(ctx, cb, a.TargetID)

	case callback.CodeAddFile:
		if _, err := h.targetDir(ctx, scope, a.TargetID, "add file"); err != nil {
			return nil, err
		}
		if err := req.Pending.Await(ctx, callback.Encode(a)+" "); err != nil {
			return nil, commands.Internal("await file", err)
		}
		return &bus.NewMessage{ChatID: cb.ChatID, Text: h.prompts.SendFile}, nil

	case callback.CodeAddDir:
		if _, err := h.targetDir(ctx, scope, a.TargetID, "add folder"); err != nil {
			return nil, err
		}
		if err := req.Pending.Await(ctx, callback.Encode(a)+" "); err != nil {
			return nil, commands.Internal("await folder", err)
		}
		return &bus.EditMessage{ChatID: cb.ChatID, MessageID: cb.MessageID, Text: h.prompts.FolderName}, nil

	case callback.CodeOpen:
		n, err := h.lookup(ctx, scope, a.TargetID, "open")
		if err != nil {
			return nil, err
		}
		if n.IsDir() {
			return nil, commands.WrongInput("open", fmt.Errorf("node %d is a directory", n.ID))
		}
		return &bus.SendBinary{ChatID: cb.ChatID, ExternalRef: n.ExternalRef, DisplayName: n.Name}, nil
	}

	return nil, commands.Internal("files", fmt.Errorf("unhandled action %q", a.Code))
}

func (h *Handler) delete(ctx context.Context, cb *bus.CallbackEvent, id int64) (bus.Reply, error) {
	scope := cb.ChatID
	if id == tree.RootID {
		return nil, commands.WrongInput("delete", fmt.Errorf("root cannot be deleted"))
	}
	n, err := h.lookup(ctx, scope, id, "delete")
	if err != nil {
		return nil, err
	}
	if n.OwnerUserID != cb.UserID {
		return nil, commands.NotOwner("delete", fmt.Errorf("node %d belongs to user %d", n.ID, n.OwnerUserID))
	}

	switch err := h.store.Remove(ctx, scope, n.ID); {
	case errors.Is(err, tree.ErrPrecondition):
		return nil, commands.Precondition("delete", err)
	case errors.Is(err, tree.ErrNotFound):
		return nil, commands.WrongInput("delete", err)
	case err != nil:
		return nil, commands.Internal("delete", err)
	}

	logger.InfoCF("files", "Node removed", map[string]any{
		"chat_id": scope,
		"user_id": cb.UserID,
		"node_id": n.ID,
		"dir":     n.IsDir(),
	})

	if _, err := h.store.Get(ctx, n.ParentID); err != nil {
		return nil, commands.Internal("delete: parent", err)
	}
	return h.editListing(ctx, cb, n.ParentID, 0)
}

func (h *Handler) handleText(ctx context.Context, req commands.Request, msg *bus.TextMessage) (bus.Reply, error) {
	args := strings.TrimSpace(req.Args)
	if args == "" || args == callback.NamespaceFiles {
		return h.newListing(ctx, msg, tree.RootID)
	}

	token, rest, _ := strings.Cut(args, " ")
	a, err := textCodec.Decode(token)
	if err != nil {
		return nil, commands.WrongInput("files", err)
	}

	switch a.Code {
	case callback.CodeAddFile:
		return h.addFile(ctx, msg, a.TargetID)
	case callback.CodeAddDir:
		return h.addDir(ctx, msg, a.TargetID, rest)
	default:
		return nil, commands.WrongInput("files", fmt.Errorf("action %q needs a button", a.Code))
	}
}

func (h *Handler) addFile(ctx context.Context, msg *bus.TextMessage, parentID int64) (bus.Reply, error) {
	doc := msg.Document
	if doc == nil || doc.FileID == "" {
		return nil, commands.WrongInput("add file", fmt.Errorf("message has no document"))
	}
	if _, err := h.targetDir(ctx, msg.ChatID, parentID, "add file"); err != nil {
		return nil, err
	}

	name := doc.FileName
	if strings.TrimSpace(name) == "" {
		name = "document"
	}
	n, err := h.store.Create(ctx, tree.NewFile(msg.ChatID, msg.UserID, parentID, name, doc.MimeType, doc.Size, doc.FileID))
	if err != nil {
		return nil, createError("add file", err)
	}
	logger.InfoCF("files", "File added", map[string]any{
		"chat_id": msg.ChatID,
		"user_id": msg.UserID,
		"node_id": n.ID,
		"size":    doc.Size,
	})
	return h.newListing(ctx, msg, parentID)
}

func (h *Handler) addDir(ctx context.Context, msg *bus.TextMessage, parentID int64, name string) (bus.Reply, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, commands.WrongInput("add folder", fmt.Errorf("empty folder name"))
	}
	if _, err := h.targetDir(ctx, msg.ChatID, parentID, "add folder"); err != nil {
		return nil, err
	}

	n, err := h.store.Create(ctx, tree.NewDir(msg.ChatID, msg.UserID, parentID, name))
	if err != nil {
		return nil, createError("add folder", err)
	}
	logger.InfoCF("files", "Folder added", map[string]any{
		"chat_id": msg.ChatID,
		"user_id": msg.UserID,
		"node_id": n.ID,
	})
	return h.newListing(ctx, msg, parentID)
}

// lookup resolves a user-supplied id. Unknown ids are stale input; nodes of
// another chat are not the user's to see.
func (h *Handler) lookup(ctx context.Context, scope, id int64, op string) (tree.Node, error) {
	n, err := h.store.Get(ctx, id)
	if errors.Is(err, tree.ErrNotFound) {
		return tree.Node{}, commands.WrongInput(op, err)
	}
	if err != nil {
		return tree.Node{}, commands.Internal(op, err)
	}
	if !n.IsRoot() && n.ScopeID != scope {
		return tree.Node{}, commands.NotOwner(op, fmt.Errorf("node %d is outside chat %d", n.ID, scope))
	}
	return n, nil
}

func (h *Handler) targetDir(ctx context.Context, scope, id int64, op string) (tree.Node, error) {
	n, err := h.lookup(ctx, scope, id, op)
	if err != nil {
		return tree.Node{}, err
	}
	if !n.IsDir() {
		return tree.Node{}, commands.WrongInput(op, fmt.Errorf("node %d is not a directory", n.ID))
	}
	return n, nil
}

func (h *Handler) editListing(ctx context.Context, cb *bus.CallbackEvent, dirID int64, page int) (bus.Reply, error) {
	view, err := h.render.RenderDirectory(ctx, cb.ChatID, dirID, page)
	if err != nil {
		return nil, renderError(err)
	}
	return editView(cb, view), nil
}

func (h *Handler) newListing(ctx context.Context, msg *bus.TextMessage, dirID int64) (bus.Reply, error) {
	view, err := h.render.RenderDirectory(ctx, msg.ChatID, dirID, 0)
	if err != nil {
		return nil, renderError(err)
	}
	return &bus.NewMessage{ChatID: msg.ChatID, Text: view.Header, Markup: view.Rows, Format: bus.FormatHTML}, nil
}

func editView(cb *bus.CallbackEvent, v View) bus.Reply {
	return &bus.EditMessage{
		ChatID:    cb.ChatID,
		MessageID: cb.MessageID,
		Text:      v.Header,
		Markup:    v.Rows,
		Format:    bus.FormatHTML,
	}
}

func renderError(err error) error {
	if errors.Is(err, tree.ErrNotFound) {
		return commands.WrongInput("render", err)
	}
	return commands.Internal("render", err)
}

func createError(op string, err error) error {
	if errors.Is(err, tree.ErrValidation) {
		return commands.WrongInput(op, err)
	}
	return commands.Internal(op, err)
}
