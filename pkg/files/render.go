package files

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/callback"
	"github.com/sipeed/picobot/pkg/tree"
)

const (
	DefaultPageSize  = 10
	DefaultNameWidth = 30

	ellipsis  = "..."
	timestamp = "02.01.2006 15:04:05"
)

const (
	glyphDir   = "📁"
	glyphAudio = "🎧"
	glyphImage = "🖼"
	glyphText  = "📋"
	glyphVideo = "🎥"
	glyphOther = "📝"
)

// View is a rendered message body with its inline keyboard.
type View struct {
	Header string
	Rows   bus.Markup
}

type Renderer interface {
	RenderDirectory(ctx context.Context, scopeID, dirID int64, page int) (View, error)
	RenderFile(ctx context.Context, n tree.Node) (View, error)
}

// Labels are the button captions. Zero values fall back to defaults.
type Labels struct {
	Folder    string `json:"folder"`
	Prev      string `json:"prev"`
	Next      string `json:"next"`
	AddFile   string `json:"add_file"`
	AddDir    string `json:"add_dir"`
	Refresh   string `json:"refresh"`
	Up        string `json:"up"`
	DeleteDir string `json:"delete_dir"`
	Download  string `json:"download"`
	Delete    string `json:"delete"`
	Back      string `json:"back"`
}

func DefaultLabels() Labels {
	return Labels{
		Folder:    "Folder",
		Prev:      "◀",
		Next:      "▶",
		AddFile:   "🆕File",
		AddDir:    "🆕Folder",
		Refresh:   "🔄Refresh",
		Up:        "⬅Up",
		DeleteDir: "🗑Delete folder",
		Download:  "⬇",
		Delete:    "🗑",
		Back:      "⬅",
	}
}

type RenderOptions struct {
	PageSize  int
	NameWidth int
	Labels    Labels
}

// TreeRenderer builds listings straight from a tree.Store.
type TreeRenderer struct {
	store     tree.Store
	pageSize  int
	nameWidth int
	labels    Labels
}

func NewRenderer(store tree.Store, opts RenderOptions) *TreeRenderer {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.NameWidth <= 0 {
		opts.NameWidth = DefaultNameWidth
	}
	labels := DefaultLabels()
	fillLabels(&opts.Labels, labels)
	return &TreeRenderer{
		store:     store,
		pageSize:  opts.PageSize,
		nameWidth: opts.NameWidth,
		labels:    opts.Labels,
	}
}

// RenderDirectory lists one page of dirID. Errors from the store are
// returned unwrapped so callers can classify them.
func (r *TreeRenderer) RenderDirectory(ctx context.Context, scopeID, dirID int64, page int) (View, error) {
	if page < 0 {
		page = 0
	}
	dir, err := r.store.Get(ctx, dirID)
	if err != nil {
		return View{}, err
	}
	if !dir.IsDir() {
		return View{}, fmt.Errorf("%w: node %d is not a directory", tree.ErrValidation, dirID)
	}

	listing, err := r.store.ListChildren(ctx, scopeID, dirID, page, r.pageSize)
	if err != nil {
		return View{}, err
	}

	var rows bus.Markup
	if listing.Total == 0 && !dir.IsRoot() {
		rows = append(rows, []bus.Button{
			{Label: r.labels.DeleteDir, Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeDelete, dir.ID))},
		})
	} else {
		for _, child := range listing.Items {
			rows = append(rows, []bus.Button{{
				Label: TruncateLabel(Glyph(child.MimeType)+child.Name, r.nameWidth),
				Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeSelect, child.ID)),
			}})
		}
		if nav := r.navRow(dir.ID, page, listing.TotalPages); len(nav) > 0 {
			rows = append(rows, nav)
		}
	}
	rows = append(rows, r.controlRows(dir)...)

	return View{
		Header: fmt.Sprintf("%s: <b>%s</b>", r.labels.Folder, html.EscapeString(dir.Name)),
		Rows:   rows,
	}, nil
}

func (r *TreeRenderer) navRow(dirID int64, page, totalPages int) []bus.Button {
	var row []bus.Button
	if page > 0 {
		row = append(row, bus.Button{
			Label: r.labels.Prev,
			Token: callback.Encode(callback.TargetPage(callback.NamespaceFiles, callback.CodeSelect, dirID, page-1)),
		})
	}
	if page+1 < totalPages && totalPages > 1 {
		row = append(row, bus.Button{
			Label: r.labels.Next,
			Token: callback.Encode(callback.TargetPage(callback.NamespaceFiles, callback.CodeSelect, dirID, page+1)),
		})
	}
	return row
}

func (r *TreeRenderer) controlRows(dir tree.Node) bus.Markup {
	add := []bus.Button{
		{Label: r.labels.AddFile, Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeAddFile, dir.ID))},
		{Label: r.labels.AddDir, Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeAddDir, dir.ID))},
	}
	var manage []bus.Button
	if !dir.IsRoot() {
		manage = append(manage, bus.Button{
			Label: r.labels.Up,
			Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeSelect, dir.ParentID)),
		})
	}
	manage = append(manage, bus.Button{
		Label: r.labels.Refresh,
		Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeSelect, dir.ID)),
	})
	return bus.Markup{add, manage}
}

// RenderFile shows a file's details with download, delete and back buttons.
func (r *TreeRenderer) RenderFile(_ context.Context, n tree.Node) (View, error) {
	if n.IsDir() {
		return View{}, fmt.Errorf("%w: node %d is a directory", tree.ErrValidation, n.ID)
	}
	var size int64
	if n.SizeBytes != nil {
		size = *n.SizeBytes
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(n.Name))
	fmt.Fprintf(&sb, "Author: <a href=\"tg://user?id=%d\">%d</a>\n", n.OwnerUserID, n.OwnerUserID)
	fmt.Fprintf(&sb, "Created: %s\n", n.CreatedAt.Format(timestamp))
	fmt.Fprintf(&sb, "Type: %s\n", html.EscapeString(*n.MimeType))
	fmt.Fprintf(&sb, "Size: %s (%d bytes)\n", humanize.Bytes(uint64(max(size, 0))), size)

	return View{
		Header: sb.String(),
		Rows: bus.Markup{{
			{Label: r.labels.Download, Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeOpen, n.ID))},
			{Label: r.labels.Delete, Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeDelete, n.ID))},
			{Label: r.labels.Back, Token: callback.Encode(callback.Target(callback.NamespaceFiles, callback.CodeSelect, n.ParentID))},
		}},
	}, nil
}

// Glyph picks the icon for a MIME type; nil means directory.
func Glyph(mimeType *string) string {
	if mimeType == nil {
		return glyphDir
	}
	switch m := *mimeType; {
	case strings.HasPrefix(m, "audio"):
		return glyphAudio
	case strings.HasPrefix(m, "image"):
		return glyphImage
	case strings.HasPrefix(m, "text"):
		return glyphText
	case strings.HasPrefix(m, "video"):
		return glyphVideo
	default:
		return glyphOther
	}
}

// TruncateLabel cuts s to width runes and appends "..." when it is longer.
func TruncateLabel(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width]) + ellipsis
}

func fillLabels(l *Labels, def Labels) {
	pairs := []struct {
		v *string
		d string
	}{
		{&l.Folder, def.Folder}, {&l.Prev, def.Prev}, {&l.Next, def.Next},
		{&l.AddFile, def.AddFile}, {&l.AddDir, def.AddDir}, {&l.Refresh, def.Refresh},
		{&l.Up, def.Up}, {&l.DeleteDir, def.DeleteDir}, {&l.Download, def.Download},
		{&l.Delete, def.Delete}, {&l.Back, def.Back},
	}
	for _, p := range pairs {
		if *p.v == "" {
			*p.v = p.d
		}
	}
}
