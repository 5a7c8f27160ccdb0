package printer

import (
	"fmt"
	"os"
)

// PrintInfo writes an informational message to stdout.
func PrintInfo(msg string) {
	fmt.Println(msg)
}

// PrintSuccess writes a success message with a check mark to stdout.
func PrintSuccess(msg string) {
	fmt.Printf("✓ %s\n", msg)
}

// PrintWarning writes a warning message to stderr.
func PrintWarning(msg string) {
	fmt.Fprintf(os.Stderr, "! %s\n", msg)
}

// PrintError writes an error message to stderr.
func PrintError(msg string) {
	fmt.Fprintf(os.Stderr, "✗ %s\n", msg)
}
