package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// browserCommand returns the program and arguments that open url on goos.
// A non-empty browserEnv ($BROWSER) takes precedence on every platform.
func browserCommand(goos, browserEnv, url string) (string, []string, error) {
	if fields := strings.Fields(browserEnv); len(fields) > 0 {
		return fields[0], append(fields[1:], url), nil
	}

	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	}
	return "", nil, fmt.Errorf("no browser launcher for %s, open the URL manually", goos)
}

// OpenBrowser starts the user's browser on the authorization URL without waiting for it to exit.
func OpenBrowser(url string) error {
	name, args, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), url)
	if err != nil {
		return err
	}
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser with %s: %w", name, err)
	}
	return nil
}
