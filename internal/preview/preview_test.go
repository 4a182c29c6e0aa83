package preview

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/feedback"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestEveryPieceAssetParses(t *testing.T) {
	for _, side := range []board.Side{board.White, board.Black} {
		for kind := board.Pawn; kind <= board.King; kind++ {
			piece := board.Piece{Kind: kind, Side: side}
			img, err := renderPieceImage(piece, 32)
			if err != nil {
				t.Fatalf("%v: %v", piece, err)
			}
			if img.Bounds().Dx() != 32 {
				t.Fatalf("%v: width = %d", piece, img.Bounds().Dx())
			}
		}
	}
	if _, err := pieceAssetName(board.NoPiece); err == nil {
		t.Fatalf("expected error for empty square")
	}
}

func TestRenderPNGDimensions(t *testing.T) {
	pos := board.StartingPosition()
	data, err := RenderPNG(context.Background(), pos, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, data)
	if img.Bounds().Dx() != Size || img.Bounds().Dy() != Size {
		t.Fatalf("bounds = %v, want %dx%d", img.Bounds(), Size, Size)
	}
}

func TestRenderPNGHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderPNG(ctx, board.StartingPosition(), Options{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestLEDOverlayIsDrawn(t *testing.T) {
	pos := board.StartingPosition()
	var f feedback.Frame
	e4 := board.MustSquare("e4")
	f.Squares[e4] = feedback.Red

	data, err := RenderPNG(context.Background(), pos, Options{LEDs: &f})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, data)

	g := geometry{origin: image.Point{X: margin, Y: margin}}
	r := g.rect(e4)
	center := image.Point{X: r.Max.X - ledRadius - 3, Y: r.Min.Y + ledRadius + 3}
	red, green, blue, _ := img.At(center.X, center.Y).RGBA()
	if red>>8 != 255 || green>>8 != 0 || blue>>8 != 0 {
		t.Fatalf("led pixel = (%d,%d,%d), want red", red>>8, green>>8, blue>>8)
	}
}

func TestGeometryFlip(t *testing.T) {
	g := geometry{origin: image.Point{}}
	a1 := g.rect(board.MustSquare("a1"))
	if a1.Min != (image.Point{X: 0, Y: 7 * squareSize}) {
		t.Fatalf("a1 at %v", a1.Min)
	}
	g.flip = true
	a1 = g.rect(board.MustSquare("a1"))
	if a1.Min != (image.Point{X: 7 * squareSize, Y: 0}) {
		t.Fatalf("flipped a1 at %v", a1.Min)
	}
}

func TestRendererCachesUntilChanged(t *testing.T) {
	ctx := context.Background()
	r := NewRenderer(board.StartingPosition(), false)

	first, err := r.PNG(ctx)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	again, _ := r.PNG(ctx)
	if &first[0] != &again[0] {
		t.Fatalf("expected cached image")
	}

	pos := board.StartingPosition()
	m, err := board.MoveFromUCI(pos, "e2e4")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	next, err := pos.Apply(m)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	cm := board.Confirm(m, board.White, "e4", time.Now())
	r.SetPosition(next, &cm)
	if err := r.Show(ctx, feedback.Frame{}); err != nil {
		t.Fatalf("show: %v", err)
	}
	changed, err := r.PNG(ctx)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if bytes.Equal(first, changed) {
		t.Fatalf("expected a different image after the move")
	}
}
