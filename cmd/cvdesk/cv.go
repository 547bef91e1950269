package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/cvedit"
	"github.com/kalambet/cvdesk/internal/document"
)

func printRecord(w io.Writer, rec cvapi.CVRecord) error {
	pi := rec.PersonalInfo
	tw := newTable(w)
	for _, row := range [][2]string{
		{"ID", rec.ID},
		{"Name", pi.Name},
		{"Email", pi.Email},
		{"Phone", pi.Phone},
		{"Address", pi.Address},
		{"GitHub", pi.GitHub},
		{"LinkedIn", pi.LinkedIn},
		{"Gender", pi.Gender},
		{"Type", pi.Type},
		{"File", rec.Filename},
		{"Uploaded", rec.UploadDate},
	} {
		fmt.Fprintf(tw, "%s:\t%s\n", colorize(colorBold, row[0]), orDash(row[1]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, sec := range []struct {
		name string
		v    any
	}{
		{"Skills", rec.Skills},
		{"Education", rec.Education},
		{"Experience", rec.Experience},
	} {
		b, err := json.MarshalIndent(sec.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", strings.ToLower(sec.name), err)
		}
		fmt.Fprintf(w, "\n%s\n%s\n", colorize(colorBold, sec.name), b)
	}
	return nil
}

var viewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show one CV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess := cvedit.New(a.api, a, cvedit.WithLogger(a.logger))
		if err := sess.Load(cmd.Context(), args[0]); err != nil {
			return errorf("loading cv failed", err)
		}
		rec := sess.Snapshot().Record

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		return printRecord(cmd.OutOrStdout(), *rec)
	},
}

// editDoc is the file opened in $EDITOR.
type editDoc struct {
	Personal   editPersonal    `json:"personal"`
	Skills     json.RawMessage `json:"skills"`
	Education  json.RawMessage `json:"education"`
	Experience json.RawMessage `json:"experience"`
}

type editPersonal struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	GitHub     string `json:"github"`
	LinkedIn   string `json:"linkedin"`
	Gender     string `json:"gender"`
	Type       string `json:"type"`
	CustomType string `json:"custom_type"`
}

func (p editPersonal) fields() map[string]string {
	return map[string]string{
		"name":        p.Name,
		"email":       p.Email,
		"phone":       p.Phone,
		"address":     p.Address,
		"github":      p.GitHub,
		"linkedin":    p.LinkedIn,
		"gender":      p.Gender,
		"type":        p.Type,
		"custom_type": p.CustomType,
	}
}

func newEditDoc(d cvedit.Draft) editDoc {
	section := func(text string) json.RawMessage {
		if json.Valid([]byte(text)) {
			return json.RawMessage(text)
		}
		b, _ := json.Marshal(text)
		return b
	}
	return editDoc{
		Personal: editPersonal{
			Name:       d.Name,
			Email:      d.Email,
			Phone:      d.Phone,
			Address:    d.Address,
			GitHub:     d.GitHub,
			LinkedIn:   d.LinkedIn,
			Gender:     d.Gender,
			Type:       d.Type,
			CustomType: d.CustomType,
		},
		Skills:     section(d.Skills),
		Education:  section(d.Education),
		Experience: section(d.Experience),
	}
}

// applyEditDoc copies the edited document into the session draft. A
// missing or null section is blank.
func applyEditDoc(sess *cvedit.Session, doc editDoc) error {
	for name, value := range doc.Personal.fields() {
		if err := sess.SetField(name, value); err != nil {
			return err
		}
	}
	for sec, raw := range map[cvedit.Section]json.RawMessage{
		cvedit.SectionSkills:     doc.Skills,
		cvedit.SectionEducation:  doc.Education,
		cvedit.SectionExperience: doc.Experience,
	} {
		text := strings.TrimSpace(string(raw))
		if text == "null" {
			text = ""
		}
		if err := sess.SetSection(sec, text); err != nil {
			return err
		}
	}
	return nil
}

// editInEditor round-trips the draft through $EDITOR.
func editInEditor(sess *cvedit.Session) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	data, err := json.MarshalIndent(newEditDoc(*sess.Snapshot().Draft), "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp("", "cvdesk-cv-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	editorCmd := exec.Command(editor, tmpPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return err
	}
	var doc editDoc
	if err := json.Unmarshal(edited, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return applyEditDoc(sess, doc)
}

// applyEditFlags handles --set name=value and --section name=path.
func applyEditFlags(sess *cvedit.Session, sets, sections []string) error {
	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--set %q: want name=value", kv)
		}
		if !slices.Contains(cvedit.Fields, name) {
			return fmt.Errorf("--set %q: unknown field (valid: %s)", kv, strings.Join(cvedit.Fields, ", "))
		}
		if err := sess.SetField(name, value); err != nil {
			return err
		}
	}
	for _, kv := range sections {
		name, path, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--section %q: want name=path", kv)
		}
		sec := cvedit.Section(name)
		if !sec.Valid() {
			return fmt.Errorf("--section %q: unknown section", kv)
		}
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := sess.SetSection(sec, string(text)); err != nil {
			return err
		}
	}
	return nil
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit one CV",
	Long: `Edit one CV. Without flags the record opens in $EDITOR as JSON.

Examples:
  cvdesk edit 42
  cvdesk edit 42 --set phone="+1 555 0100" --set type=Designer
  cvdesk edit 42 --section skills=./skills.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, _ := cmd.Flags().GetStringArray("set")
		sections, _ := cmd.Flags().GetStringArray("section")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess := cvedit.New(a.api, a, cvedit.WithLogger(a.logger))
		if err := sess.Load(cmd.Context(), args[0]); err != nil {
			return errorf("loading cv failed", err)
		}
		if err := sess.BeginEdit(); err != nil {
			return err
		}

		if len(sets) > 0 || len(sections) > 0 {
			err = applyEditFlags(sess, sets, sections)
		} else {
			err = editInEditor(sess)
		}
		if err != nil {
			return err
		}

		failures, err := sess.ValidateAll()
		if err != nil {
			return err
		}
		if len(failures) > 0 {
			for _, sec := range cvedit.Sections {
				if ferr := failures[sec]; ferr != nil {
					printError("%v", ferr)
				}
			}
			return fmt.Errorf("cv %s not saved: %d invalid section(s)", args[0], len(failures))
		}

		if err := sess.Save(cmd.Context()); err != nil {
			return errorf("saving cv failed", err)
		}
		printSuccess("CV %s updated", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one CV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("yes")
		if !confirm {
			printWarning("This permanently deletes CV %s. Use --yes to proceed.", args[0])
			return nil
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess := cvedit.New(a.api, a, cvedit.WithLogger(a.logger))
		if err := sess.Load(cmd.Context(), args[0]); err != nil {
			return errorf("loading cv failed", err)
		}
		if err := sess.Delete(cmd.Context()); err != nil {
			return errorf("delete failed", err)
		}
		printSuccess("CV %s deleted", args[0])
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download the original file of a CV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		// Without -o the file lands as <id>.bin and is renamed once its
		// kind is known.
		target := output
		if target == "" {
			target = args[0] + ".bin"
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		n, err := a.api.DownloadPDFToPath(cmd.Context(), args[0], target)
		if err != nil {
			return errorf("download failed", err)
		}

		data, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("reading %s: %w", target, err)
		}
		info, inspectErr := document.Inspect(data)
		if output == "" {
			output = target
			if ext := info.Kind.Extension(); ext != "" {
				output = args[0] + ext
				if err := os.Rename(target, output); err != nil {
					return fmt.Errorf("renaming %s: %w", target, err)
				}
			}
		}

		switch {
		case inspectErr != nil:
			printWarning("Saved %s (%d bytes) but it does not look like a valid %s: %v", output, n, info.Kind, inspectErr)
		case info.Kind == document.KindPDF:
			printSuccess("Saved %s (PDF, %d pages, %d bytes)", output, info.Pages, info.Size)
		case info.Kind == document.KindDOCX:
			printSuccess("Saved %s (DOCX, %d bytes)", output, info.Size)
		default:
			printSuccess("Saved %s (%d bytes)", output, info.Size)
		}
		return nil
	},
}

func init() {
	viewCmd.Flags().Bool("json", false, "print JSON")
	editCmd.Flags().StringArray("set", nil, "set a personal field, name=value (repeatable)")
	editCmd.Flags().StringArray("section", nil, "replace a section from a JSON file, name=path (repeatable)")
	deleteCmd.Flags().Bool("yes", false, "confirm deletion")
	downloadCmd.Flags().StringP("output", "o", "", "output path (default <id>.pdf or <id>.docx)")
}
