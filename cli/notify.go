package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/go-wordwrap"

	"github.com/etnz/ggbackup/ggapp"
)

type level int

const (
	levelInfo level = iota
	levelSuccess
	levelWarning
	levelError
)

var icons = map[level]string{
	levelInfo:    "ℹ️",
	levelSuccess: "✅",
	levelWarning: "⚠️",
	levelError:   "❌",
}

// notify writes a transient message: an icon, then text wrapped and indented under it.
func notify(w io.Writer, lvl level, text string) {
	const wrapWidth = 80

	firstLinePrefix := icons[lvl] + " "
	indentPrefix := "   "

	wrapped := wordwrap.WrapString(text, uint(wrapWidth-len(indentPrefix)))
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			fmt.Fprintf(w, "%s%s\n", firstLinePrefix, line)
		} else {
			fmt.Fprintf(w, "%s%s\n", indentPrefix, line)
		}
	}
}

// describe turns an error into the message shown to the user.
func describe(err error) string {
	var uerr *ggapp.UploadError
	var derr *ggapp.DownloadError
	var nerr *ggapp.NetworkError
	switch {
	case errors.Is(err, ggapp.ErrUnauthenticated):
		return "Not connected to Google Drive. Run 'ggbackup login' first."
	case errors.Is(err, ggapp.ErrPopupBlocked):
		return "Could not open a browser for the Google sign-in. Run 'ggbackup login --no-browser' and open the printed URL yourself."
	case errors.Is(err, ggapp.ErrTokenNotFound):
		return "Sign-in did not complete: no access token was received. " + err.Error()
	case errors.Is(err, ggapp.ErrInvalidBackupFormat):
		return "Invalid backup file, nothing was restored: " + err.Error()
	case errors.Is(err, ggapp.ErrRestoreCancelled):
		return "Restore cancelled, your data is unchanged."
	case errors.As(err, &uerr):
		return "Upload to Google Drive failed: " + uerr.Message
	case errors.As(err, &derr):
		return "Download from Google Drive failed: " + derr.Message
	case errors.As(err, &nerr):
		return "Could not reach Google Drive: " + nerr.Err.Error()
	}
	return "Error: " + err.Error()
}
