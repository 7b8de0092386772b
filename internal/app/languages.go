package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"horse.fit/translationtower/internal/cli"
	"horse.fit/translationtower/internal/model"
)

func runLanguages(args []string) int {
	fs := flag.NewFlagSet("languages", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	translator := fs.String("translator", "", "Only list languages this translator supports (bing, deepl, fake)")
	formatRaw := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	format, err := parseOutputFormat(*formatRaw, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	name := strings.ToLower(strings.TrimSpace(*translator))
	if name != "" && !knownProvider(name) {
		fmt.Fprintf(os.Stderr, "--translator must be one of %s\n", strings.Join(model.ProviderNames, ", "))
		return 2
	}

	cfg, _, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	table, err := loadLanguageTable(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load language table: %v\n", err)
		return 1
	}

	entries := table.Entries(name)
	if format == outputFormatJSON {
		if err := writeJSON("", entries); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write languages: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.Code,
			entry.Description,
			entry.Bing,
			entry.DeepL,
			strconv.FormatBool(entry.DeepLOnlyTranslation),
		})
	}
	if err := writeTable([]string{"CODE", "DESCRIPTION", "BING", "DEEPL", "DEEPL_TRANSLATION_ONLY"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write languages: %v\n", err)
		return 1
	}
	return 0
}

func knownProvider(name string) bool {
	for _, known := range model.ProviderNames {
		if name == known {
			return true
		}
	}
	return false
}
