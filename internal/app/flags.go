package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

// parseFileArg parses flags around exactly one positional file argument, so
// both "translate req.json --output out.json" and the reverse order work.
// It returns the file and an exit code; the code is -1 when parsing succeeded.
func parseFileArg(fs *flag.FlagSet, args []string) (string, int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", 0
		}
		return "", 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "%s requires a request JSON file\n", fs.Name())
		fs.Usage()
		return "", 2
	}

	path := strings.TrimSpace(fs.Arg(0))
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", 0
		}
		return "", 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "%s accepts one request file, got extra arguments: %s\n", fs.Name(), strings.Join(fs.Args(), " "))
		return "", 2
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "%s request file must not be empty\n", fs.Name())
		return "", 2
	}
	return path, -1
}
