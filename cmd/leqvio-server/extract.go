package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/extraction"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/docai"
)

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract a patient identity from a transcript file or stdin",
		Long: `Extract runs the identity pipeline on a single input and prints the
resulting identity as JSON. Text inputs are scanned directly; image and PDF
inputs need --provider to read them. The command exits non-zero when the
identity is incomplete.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interactive, _ := cmd.Flags().GetBool("interactive")
			provider, _ := cmd.Flags().GetString("provider")
			return runExtract(args, interactive, provider)
		},
	}
	cmd.Flags().Bool("interactive", false, "Prompt for identity fields the patterns missed")
	cmd.Flags().String("provider", "", "Extraction provider for non-text files (openai, anthropic)")
	return cmd
}

// Document inputs the extract command can hand to a provider.
var extractMIMEs = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// providerConfig builds a provider config from the environment; the extract
// command does not need a database, so it skips the full config loader.
func providerConfig(provider string) docai.Config {
	c := docai.Config{Provider: provider}
	switch strings.ToLower(provider) {
	case "openai":
		c.APIKey = os.Getenv("OPENAI_API_KEY")
		c.Model = os.Getenv("OPENAI_MODEL")
	case "anthropic", "claude":
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		c.Model = os.Getenv("ANTHROPIC_MODEL")
	}
	return c
}

func runExtract(args []string, interactive bool, provider string) error {
	ctx := context.Background()

	var (
		data []byte
		name string
		err  error
	)
	if len(args) == 1 {
		name = args[0]
		data, err = os.ReadFile(name)
	} else {
		name = "stdin"
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	text := string(data)
	var pre extraction.Fields
	if mimeType := extractMIMEs[strings.ToLower(filepath.Ext(name))]; mimeType != "" {
		if provider == "" {
			return fmt.Errorf("%s needs --provider to be read", name)
		}
		ex, err := docai.NewExtractor(providerConfig(provider))
		if err != nil {
			return err
		}
		if ex == nil {
			return fmt.Errorf("%s needs a configured provider to be read", name)
		}
		res, err := ex.ExtractFields(ctx, docai.Request{ImageData: data, ImageMIME: mimeType})
		if err != nil {
			return fmt.Errorf("provider extraction failed: %w", err)
		}
		text = res.TranscriptText
		pre = res.Fields.IdentityFields()
	}

	id := extraction.Extract(text)
	resolver := extraction.StaticResolver(pre)
	if interactive {
		resolver = extraction.ResolverFunc(func(_ context.Context, partial extraction.Identity) (extraction.Fields, error) {
			return promptMissing(partial, pre)
		})
	}
	id, rerr := extraction.ResolveIncomplete(ctx, id, resolver)

	out, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return rerr
}

var dobInput = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

// promptMissing asks for the identity fields that neither the patterns nor
// the provider supplied. Answers merge into the pre-structured fields so a
// single resolver pass sees everything.
func promptMissing(partial extraction.Identity, pre extraction.Fields) (extraction.Fields, error) {
	known := func(cur, fromDoc *string) bool {
		return cur != nil || (fromDoc != nil && *fromDoc != "")
	}
	notBlank := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("required")
		}
		return nil
	}

	var first, last, dob string
	var fields []huh.Field
	if !known(partial.FirstName, pre.FirstName) {
		fields = append(fields, huh.NewInput().
			Title("First name").
			Value(&first).
			Validate(notBlank))
	}
	if !known(partial.LastName, pre.LastName) {
		fields = append(fields, huh.NewInput().
			Title("Last name").
			Value(&last).
			Validate(notBlank))
	}
	if !known(partial.DateOfBirth, pre.DateOfBirth) {
		fields = append(fields, huh.NewInput().
			Title("Date of birth").
			Description("M/D/YYYY with a 4-digit year").
			Placeholder("3/15/1985").
			Value(&dob).
			Validate(func(s string) error {
				if !dobInput.MatchString(strings.TrimSpace(s)) {
					return fmt.Errorf("use M/D/YYYY with a 4-digit year")
				}
				return nil
			}))
	}
	if len(fields) == 0 {
		return pre, nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return pre, err
	}

	if s := strings.TrimSpace(first); s != "" {
		pre.FirstName = &s
	}
	if s := strings.TrimSpace(last); s != "" {
		pre.LastName = &s
	}
	if s := strings.TrimSpace(dob); s != "" {
		s = padDOB(s)
		pre.DateOfBirth = &s
	}
	return pre, nil
}

// padDOB left-pads month and day so the value matches the MM/DD/YYYY wire
// format the rest of the pipeline uses.
func padDOB(s string) string {
	m := dobInput.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	pad := func(v string) string {
		if len(v) == 1 {
			return "0" + v
		}
		return v
	}
	return pad(m[1]) + "/" + pad(m[2]) + "/" + m[3]
}
