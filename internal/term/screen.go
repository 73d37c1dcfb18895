// Package term defines the UI-agnostic terminal screen snapshot.
//
// Viewers never see emulator-specific types; the vt10x glyph grid is decoded
// into Screen/Cell/Color at this boundary.
package term

import (
	"strings"

	"github.com/tuzig/vt10x"
)

// ColorKind discriminates cell color encodings.
type ColorKind int

const (
	ColorDefault ColorKind = iota
	ColorNamed
	ColorIndexed
	ColorRGB
)

// Color is one of the terminal's default color, the 16 named ANSI colors,
// a 256-palette index, or a truecolor RGB value.
type Color struct {
	Kind  ColorKind
	Index uint8
	R     uint8
	G     uint8
	B     uint8
}

// DefaultColor is the terminal default foreground or background.
func DefaultColor() Color { return Color{Kind: ColorDefault} }

// NamedColor is one of the 16 ANSI colors (0-15).
func NamedColor(index uint8) Color { return Color{Kind: ColorNamed, Index: index} }

// IndexedColor is a 256-palette color (16-255).
func IndexedColor(index uint8) Color { return Color{Kind: ColorIndexed, Index: index} }

// RGBColor is a truecolor value.
func RGBColor(r, g, b uint8) Color { return Color{Kind: ColorRGB, R: r, G: g, B: b} }

// Cell is one character cell of the screen grid.
type Cell struct {
	Char      rune
	FG        Color
	BG        Color
	Bold      bool
	Italic    bool
	Underline bool
	Inverse   bool
}

// Cursor is a cursor position in (column, row) order.
type Cursor struct {
	Col int
	Row int
}

// Screen is a UI-agnostic snapshot of a terminal grid.
type Screen struct {
	Lines  [][]Cell
	Cursor *Cursor
	Cols   int
	Rows   int
}

// Glyph attribute bits, mirroring vt10x's internal layout (the emulator does
// not export them).
const (
	attrReverse = 1 << iota
	attrUnderline
	attrBold
	attrGfx
	attrItalic
	attrBlink
)

// Snapshot decodes the emulator's current grid into a Screen.
// The caller must hold whatever lock guards the terminal.
func Snapshot(t vt10x.Terminal, cols, rows int) Screen {
	lines := make([][]Cell, rows)
	for row := 0; row < rows; row++ {
		cells := make([]Cell, cols)
		for col := 0; col < cols; col++ {
			g := t.Cell(col, row)
			ch := g.Char
			if ch == 0 {
				ch = ' '
			}
			cells[col] = Cell{
				Char:      ch,
				FG:        decodeColor(g.FG),
				BG:        decodeColor(g.BG),
				Bold:      g.Mode&attrBold != 0,
				Italic:    g.Mode&attrItalic != 0,
				Underline: g.Mode&attrUnderline != 0,
				Inverse:   g.Mode&attrReverse != 0,
			}
		}
		lines[row] = cells
	}

	cur := t.Cursor()
	return Screen{
		Lines:  lines,
		Cursor: &Cursor{Col: cur.X, Row: cur.Y},
		Cols:   cols,
		Rows:   rows,
	}
}

// Text renders the screen as plain text with styling stripped and trailing
// whitespace trimmed.
func (s Screen) Text() string {
	var b strings.Builder
	for _, line := range s.Lines {
		for _, cell := range line {
			b.WriteRune(cell.Char)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), " \n")
}

func decodeColor(c vt10x.Color) Color {
	switch {
	case c == vt10x.DefaultFG || c == vt10x.DefaultBG || c == vt10x.DefaultCursor:
		return DefaultColor()
	case c < 16:
		return NamedColor(uint8(c))
	case c < 256:
		return IndexedColor(uint8(c))
	default:
		return RGBColor(uint8(c>>16), uint8(c>>8), uint8(c))
	}
}
