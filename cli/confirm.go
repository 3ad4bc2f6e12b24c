package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// confirm prompts the user to confirm a destructive action. yes answers for them.
func confirm(yes bool, in io.Reader, out io.Writer, question string) (bool, error) {
	if yes {
		return true, nil
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.TrimSpace(strings.ToLower(line))
	return ans == "y" || ans == "yes" || ans == "s" || ans == "sim", nil
}

// restoreConfirmer asks before a backup replaces the local data.
func (e *env) restoreConfirmer() func(context.Context, string) (bool, error) {
	return func(_ context.Context, fileID string) (bool, error) {
		question := fmt.Sprintf("⚠️  This replaces ALL current finance data with backup %s.\n"+
			"A copy of the current data is uploaded first.\nContinue?", fileID)
		return confirm(e.yes, e.stdin, e.stderr, question)
	}
}

// pastedAddress asks the user for the address their browser ended on after signing in.
func (e *env) pastedAddress(ctx context.Context) (string, error) {
	if e.yes {
		return "", fmt.Errorf("no address to inspect in non-interactive mode")
	}
	fmt.Fprint(e.stderr, "No token received. Paste the address shown by your browser after sign-in (empty to give up): ")
	line, err := bufio.NewReader(e.stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
