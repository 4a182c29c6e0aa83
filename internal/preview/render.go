// Package preview draws the tracked position and the current LED frame as a PNG.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/feedback"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize = 56
	margin     = 24
	boardSize  = squareSize * 8
	ledRadius  = 7
)

// Options controls what is drawn on top of the pieces.
type Options struct {
	LastMove *board.ConfirmedMove
	// LEDs, when set, are drawn as a dot in the corner of each lit square.
	LEDs *feedback.Frame
	// Flip puts rank 8 at the bottom.
	Flip bool
}

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	backgroundColor     = color.RGBA{28, 31, 46, 255}
	moveHighlightFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow      = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	ledRimColor         = color.NRGBA{0, 0, 0, 160}
)

// Size is the width and height of every rendered image.
const Size = boardSize + margin*2

// RenderPNG draws pos and encodes it.
func RenderPNG(ctx context.Context, pos board.Position, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	g := geometry{origin: image.Point{X: margin, Y: margin}, flip: opts.Flip}
	drawSquares(img, g)
	drawHighlight(img, g, opts.LastMove)
	if err := drawPieces(img, g, pos); err != nil {
		return nil, err
	}
	if opts.LEDs != nil {
		drawLEDs(img, g, *opts.LEDs)
	}
	drawCoordinates(img, g)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

type geometry struct {
	origin image.Point
	flip   bool
}

func (g geometry) rect(sq board.Square) image.Rectangle {
	row, col := 7-sq.Rank(), sq.File()
	if g.flip {
		row, col = sq.Rank(), 7-sq.File()
	}
	x := g.origin.X + col*squareSize
	y := g.origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawSquares(dst imagedraw.Image, g geometry) {
	for sq := board.Square(0); sq < 64; sq++ {
		imagedraw.Draw(dst, g.rect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
	}
}

func squareColor(sq board.Square) color.Color {
	if (sq.File()+sq.Rank())%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawPieces(dst imagedraw.Image, g geometry, pos board.Position) error {
	for sq := board.Square(0); sq < 64; sq++ {
		piece := pos.At(sq)
		if piece.Empty() {
			continue
		}
		img, err := renderPieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, g.rect(sq), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

// drawHighlight shades both squares of a white move and draws an arrow for a black one.
func drawHighlight(img *image.RGBA, g geometry, last *board.ConfirmedMove) {
	if last == nil || last.From == last.To {
		return
	}
	if last.Side == board.Black {
		drawArrow(img, g, last.From, last.To, blackMoveArrow)
		return
	}
	drawSquareOverlay(img, g.rect(last.From), moveHighlightFill)
	drawSquareOverlay(img, g.rect(last.To), moveHighlightFill)
}

func drawLEDs(img *image.RGBA, g geometry, f feedback.Frame) {
	for sq := board.Square(0); sq < 64; sq++ {
		c := f.Squares[sq]
		if c == feedback.Off {
			continue
		}
		r := g.rect(sq)
		center := image.Point{X: r.Max.X - ledRadius - 3, Y: r.Min.Y + ledRadius + 3}
		drawDisc(img, center, ledRadius+1, ledRimColor)
		drawDisc(img, center, ledRadius, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
	}
}

func drawCoordinates(dst imagedraw.Image, g geometry) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()

	for i := 0; i < 8; i++ {
		fileSq := board.Square(i)
		r := g.rect(fileSq)
		drawCenteredText(drawer, string(rune('a'+i)), (r.Min.X+r.Max.X)/2, g.origin.Y+boardSize+ascent+4)

		rankSq := board.Square(i * 8)
		r = g.rect(rankSq)
		drawCenteredText(drawer, string(rune('1'+i)), g.origin.X-margin/2, (r.Min.Y+r.Max.Y)/2+ascent/2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawSquareOverlay(img *image.RGBA, r image.Rectangle, clr color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			blendPixel(img, x, y, clr)
		}
	}
}

func drawArrow(img *image.RGBA, g geometry, from, to board.Square, clr color.Color) {
	startRect, endRect := g.rect(from), g.rect(to)
	start := pointF{X: float64(startRect.Min.X + squareSize/2), Y: float64(startRect.Min.Y + squareSize/2)}
	end := pointF{X: float64(endRect.Min.X + squareSize/2), Y: float64(endRect.Min.Y + squareSize/2)}

	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - squareSize*0.45
	if baseLength < squareSize*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := squareSize * 0.18
	headWidth := squareSize * 0.32

	baseX := start.X + dirX*baseLength
	baseY := start.Y + dirY*baseLength

	fillQuad(img,
		pointF{X: start.X - perpX*halfWidth, Y: start.Y - perpY*halfWidth},
		pointF{X: start.X + perpX*halfWidth, Y: start.Y + perpY*halfWidth},
		pointF{X: baseX + perpX*halfWidth, Y: baseY + perpY*halfWidth},
		pointF{X: baseX - perpX*halfWidth, Y: baseY - perpY*halfWidth},
		clr)
	fillTriangleF(img,
		end,
		pointF{X: baseX - perpX*headWidth/2, Y: baseY - perpY*headWidth/2},
		pointF{X: baseX + perpX*headWidth/2, Y: baseY + perpY*headWidth/2},
		clr)
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			blendPixel(img, center.X+x, center.Y+y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 65535 - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/65535) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/65535) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/65535) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/65535) >> 8),
	})
}

type pointF struct {
	X float64
	Y float64
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF, clr color.Color) {
	fillTriangleF(img, p0, p1, p2, clr)
	fillTriangleF(img, p0, p2, p3, clr)
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func pointInTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	gamma := 1 - alpha - beta
	return alpha >= 0 && beta >= 0 && gamma >= 0
}
