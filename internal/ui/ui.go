package ui

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/nevisdale/twisim/internal/ssd1306"
	"github.com/nevisdale/twisim/internal/twi"
)

// Tab - show debug info
// P - pause
// R - one step and stop

// Stepper advances the simulated firmware by one frame.
type Stepper interface {
	Step() error
}

type UI struct {
	sim     Stepper
	display *ssd1306.Display
	twis    []*twi.Controller

	scale     int
	panel     *ebiten.Image
	pixels    []byte
	showDebug bool
	paused    bool
	oneStep   bool

	frame   uint64
	lastErr error
}

func New(sim Stepper, display *ssd1306.Display, twis []*twi.Controller, scale int) *UI {
	if scale < 1 {
		scale = 1
	}
	return &UI{
		sim:       sim,
		display:   display,
		twis:      twis,
		scale:     scale,
		pixels:    make([]byte, 4*ssd1306.Width*ssd1306.Height),
		showDebug: true,
	}
}

func (ui *UI) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		ui.showDebug = !ui.showDebug
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		ui.paused = !ui.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		ui.paused = true
		ui.oneStep = true
	}

	if ui.paused && !ui.oneStep {
		return nil
	}
	ui.oneStep = false
	ui.frame++
	if err := ui.sim.Step(); err != nil {
		ui.lastErr = err
	}
	return nil
}

// pixelColor is a white OLED pixel dimmed by the contrast setting.
func (ui *UI) pixelColor() color.RGBA {
	v := uint8(0x40 + int(ui.display.Contrast)*3/4)
	return color.RGBA{v, v, v, 0xFF}
}

func (ui *UI) drawPanel(screen *ebiten.Image) {
	if ui.panel == nil {
		ui.panel = ebiten.NewImage(ssd1306.Width, ssd1306.Height)
	}
	on := ui.pixelColor()
	for y := 0; y < ssd1306.Height; y++ {
		for x := 0; x < ssd1306.Width; x++ {
			i := 4 * (y*ssd1306.Width + x)
			c := color.RGBA{0, 0, 0, 0xFF}
			if ui.display.Pixel(x, y) {
				c = on
			}
			ui.pixels[i], ui.pixels[i+1], ui.pixels[i+2], ui.pixels[i+3] = c.R, c.G, c.B, c.A
		}
	}
	ui.panel.WritePixels(ui.pixels)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(ui.scale), float64(ui.scale))
	screen.DrawImage(ui.panel, op)
}

func (ui *UI) Draw(screen *ebiten.Image) {
	ui.drawPanel(screen)
	if !ui.showDebug {
		return
	}

	var infoStr strings.Builder
	fmt.Fprintf(&infoStr, " FPS: %0.0f\n", ebiten.ActualFPS())
	fmt.Fprintf(&infoStr, " FRAME: %d", ui.frame)
	if ui.paused {
		infoStr.WriteString(" [PAUSED]")
	}
	infoStr.WriteString("\n")
	col, page := ui.display.Pointer()
	fmt.Fprintf(&infoStr, " OLED: %s mode, col %d page %d\n", ui.display.Mode(), col, page)
	for _, c := range ui.twis {
		fmt.Fprintf(&infoStr, "\n %s\n", c.Name())
		fmt.Fprintf(&infoStr, "  STATE: %s\n", c.Transaction().State)
		fmt.Fprintf(&infoStr, "  TWSR: $%02X %s\n", c.ReadRegister(twi.RegStatus), c.Status())
		fmt.Fprintf(&infoStr, "  TWCR: $%02X", c.ReadRegister(twi.RegControl))
		fmt.Fprintf(&infoStr, " TWDR: $%02X", c.ReadRegister(twi.RegData))
		fmt.Fprintf(&infoStr, " TWAR: $%02X\n", c.ReadRegister(twi.RegAddress))
		fmt.Fprintf(&infoStr, "  IRQ: pending=%t line=%t\n", c.Pending(), c.Asserted())
	}
	if ui.lastErr != nil {
		fmt.Fprintf(&infoStr, "\n ERR: %v\n", ui.lastErr)
	}

	debugScreenOffsetX := float32(ssd1306.Width * ui.scale)
	vector.DrawFilledRect(screen, debugScreenOffsetX, 0, debugScreenWidth, float32(ui.height()), color.RGBA{50, 50, 50, 255}, false)
	ebitenutil.DebugPrintAt(screen, infoStr.String(), int(debugScreenOffsetX), 0)
}

const (
	debugScreenWidth     = 300
	debugScreenMinHeight = 240
)

func (ui *UI) height() int {
	return max(ssd1306.Height*ui.scale, debugScreenMinHeight)
}

func (ui *UI) Layout(_, _ int) (int, int) {
	return ssd1306.Width*ui.scale + debugScreenWidth, ui.height()
}

func RunUI(ui *UI) error {
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(ui.Layout(0, 0))
	ebiten.SetWindowTitle("twisim")
	ebiten.SetTPS(30)
	return ebiten.RunGame(ui)
}
