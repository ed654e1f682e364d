package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const welcomeRule = "==================================================================================="

const welcomeMarkdown = `# Particle Tachyon Setup Command

Welcome to the Particle Tachyon setup! This interactive command:

- Flashes your Tachyon device
- Configures it (password, WiFi credentials etc...)
- Connects it to the internet and the Particle Cloud!

**What you'll need:**

1. Your Tachyon device
2. The Tachyon battery
3. A USB-C cable

**Important:**

- This tool requires you to be logged into your Particle account.
- For more details, check out the documentation at: https://part.cl/setup-tachyon
`

// WelcomeText is the plain-text welcome message.
func WelcomeText() string {
	var b strings.Builder
	b.WriteString("\n" + welcomeRule + "\n")
	b.WriteString("\t\t\t  Particle Tachyon Setup Command\n")
	b.WriteString(welcomeRule + "\n")
	body := strings.SplitN(welcomeMarkdown, "\n", 2)[1]
	b.WriteString(strings.ReplaceAll(body, "**", ""))
	return b.String()
}

// Welcome prints the welcome message, rendered as markdown on a terminal.
func (u *UI) Welcome() {
	if u.interactive {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			if rendered, err := r.Render(welcomeMarkdown); err == nil {
				u.Printf("%s", rendered)
				return
			}
		}
	}
	u.Printf("%s\n", WelcomeText())
}
