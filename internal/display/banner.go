package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

// RenderBanner returns the logo and tagline centred for the current
// terminal. An empty tagline is omitted.
func RenderBanner(tagline string) string {
	art := strings.Split(strings.TrimRight(bannerRaw, "\n"), "\n")
	return centerBlock(art, tagline, termWidth())
}

// centerBlock pads every art line by the same amount so the logo keeps its
// shape, then centres the tagline on its own under it.
func centerBlock(art []string, tagline string, width int) string {
	artW := 0
	for _, l := range art {
		artW = max(artW, len(l))
	}
	indent := strings.Repeat(" ", max(0, (width-artW)/2))

	var b strings.Builder
	for _, l := range art {
		b.WriteString(indent)
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	if tagline != "" {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", max(0, (width-len(tagline))/2)))
		b.WriteString(secondaryStyle.Render(tagline))
		b.WriteByte('\n')
	}
	return b.String()
}

func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
