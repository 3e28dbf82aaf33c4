package popup

import (
	"context"
	"log"
	"os/exec"
	"runtime"
)

// LogOpener returns an opener that prints the window URL for the user to
// open by hand.
func LogOpener() Opener {
	return OpenerFunc(func(_ context.Context, window Window) error {
		log.Printf("open login window %s (%dx%d): %s", window.Name, window.Width, window.Height, window.URL)
		return nil
	})
}

// BrowserOpener returns an opener that hands the URL to the platform's
// default browser. It logs the URL as well, so headless hosts still work.
func BrowserOpener() Opener {
	return browserOpener{goos: runtime.GOOS, start: startCommand}
}

type browserOpener struct {
	goos  string
	start func(cmd *exec.Cmd) error
}

func (o browserOpener) Open(_ context.Context, window Window) error {
	log.Printf("opening login window %s in browser: %s", window.Name, window.URL)
	name, args := browserCommand(o.goos, window.URL)
	return o.start(exec.Command(name, args...))
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// startCommand starts cmd without waiting for the browser to exit.
func startCommand(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
