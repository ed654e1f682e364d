package setupconfig

import "strings"

// BoardKind is the hardware family of a board name.
type BoardKind int

const (
	StandardBoard BoardKind = iota
	RGBBoard
)

const rgbBoardName = "rb3g2"

// KindOfBoard maps a board name onto its family. Anything that is not the RGB
// board is treated as a standard Tachyon board.
func KindOfBoard(board string) BoardKind {
	if board == rgbBoardName {
		return RGBBoard
	}
	return StandardBoard
}

// Family is the manifest family the board's builds are published under.
func (k BoardKind) Family() string {
	if k == RGBBoard {
		return rgbBoardName
	}
	return "tachyon"
}

func (k BoardKind) String() string {
	if k == RGBBoard {
		return "rgb"
	}
	return "standard"
}

// Variant is the operating system personality flashed onto the device.
type Variant string

const (
	HeadlessVariant Variant = "headless"
	DesktopVariant  Variant = "desktop"
	ServerVariant   Variant = "preinstalled-server"
)

// ParseVariant returns the variant named s.
func ParseVariant(s string) (Variant, bool) {
	switch v := Variant(strings.TrimSpace(s)); v {
	case HeadlessVariant, DesktopVariant, ServerVariant:
		return v, true
	}
	return "", false
}

// VariantChoice is one entry of the variant prompt.
type VariantChoice struct {
	Label   string
	Variant Variant
}

var variantChoices = map[BoardKind][]VariantChoice{
	StandardBoard: {
		{Label: "desktop (GUI)", Variant: DesktopVariant},
		{Label: "headless (command-line only)", Variant: HeadlessVariant},
	},
	RGBBoard: {
		{Label: "preinstalled server", Variant: ServerVariant},
	},
}

var variantDescriptions = map[BoardKind]string{
	StandardBoard: "The 'desktop' includes a GUI and is best for interacting with the device with a keyboard, mouse, and display.\n" +
		"The 'headless' variant is accessed only by a terminal out of the box.",
	RGBBoard: `The "preinstalled server" variant is for the RGB board.`,
}

// VariantChoices lists the variants offered for a board family.
func VariantChoices(k BoardKind) []VariantChoice {
	return variantChoices[k]
}

// VariantDescription explains the variants offered for a board family.
func VariantDescription(k BoardKind) string {
	return variantDescriptions[k]
}
